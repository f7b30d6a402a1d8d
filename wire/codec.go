package wire

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes and decodes TransportMessage frames on one of the two wire
// shapes (object form, opcode form) using one of the two body encodings
// (json, messagepack). EncodeBody/DecodeBody expose the codec's underlying
// body encoding directly; opcode 107 bundling uses them to re-encode a
// StateUpdateBody and its piggybacked events at the body level, independent
// of the outer frame shape.
type Codec interface {
	// Name identifies the encoding, e.g. "json", "messagepack",
	// "opcode-json", "opcode-messagepack". It is the value negotiated in
	// joinResponse.encoding and in encodingConfig.
	Name() string
	EncodeMessage(m Message) ([]byte, error)
	DecodeMessage(data []byte) (Message, error)
	EncodeBody(v any) ([]byte, error)
	DecodeBody(data []byte, out any) error
}

// bodyCodec is the plain value (de)serializer a wire Codec is built on: the
// object-form codec uses it directly for whole frames, the opcode-form codec
// uses it per positional field and for opcode 107's nested sub-bodies.
type bodyCodec struct {
	name      string
	marshal   func(v any) ([]byte, error)
	unmarshal func(data []byte, out any) error
}

var jsonBody = bodyCodec{
	name:      "json",
	marshal:   json.Marshal,
	unmarshal: json.Unmarshal,
}

var msgpackBody = bodyCodec{
	name:      "messagepack",
	marshal:   msgpack.Marshal,
	unmarshal: msgpack.Unmarshal,
}

// ByName resolves one of the four negotiable encodings to its Codec.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return NewJSONCodec(), true
	case "messagepack":
		return NewMessagePackCodec(), true
	case "opcode-json":
		return NewOpcodeJSONCodec(), true
	case "opcode-messagepack":
		return NewOpcodeMessagePackCodec(), true
	default:
		return nil, false
	}
}
