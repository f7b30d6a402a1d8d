package statetree

import "github.com/vmihailenco/msgpack/v5"

// EncodeMsgpack and DecodeMsgpack give Value the same canonical-value
// treatment under msgpack that MarshalJSON/UnmarshalJSON give it under JSON:
// it travels on the wire as a plain msgpack value (nil/bool/int/float/
// string/array/map), not as the internal Kind-tagged struct.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(v.ToAny())
}

func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	generic, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	*v = FromAny(generic)
	return nil
}
