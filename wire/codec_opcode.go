package wire

import (
	"encoding/base64"
	"fmt"

	"landkeeper/statetree"
)

// opcodeCodec implements the opcode-form wire shape: a positional array
// whose first element is the integer opcode, e.g. [104, "req-1", "table",
// "", "p1", "", {}] for a join. Opcodes 101/103/104/105/107 are the ones
// spec.md's wire table assigns; 102 and 106 are this implementation's own
// extension so ping/pong - which the table leaves without a code - still
// round-trip under opcode encoding exactly as object-form does.
type opcodeCodec struct {
	body bodyCodec
}

const (
	opcodePing Opcode = 102
	opcodePong Opcode = 106
)

func NewOpcodeJSONCodec() Codec        { return &opcodeCodec{body: jsonBody} }
func NewOpcodeMessagePackCodec() Codec { return &opcodeCodec{body: msgpackBody} }

func (c *opcodeCodec) Name() string {
	if c.body.name == "messagepack" {
		return "opcode-messagepack"
	}
	return "opcode-json"
}

func (c *opcodeCodec) EncodeBody(v any) ([]byte, error) { return c.body.marshal(v) }

func (c *opcodeCodec) DecodeBody(data []byte, out any) error { return c.body.unmarshal(data, out) }

// encodeBytesField stores a []byte positionally: messagepack carries it as
// its native bin type, json as a base64 string (json.Marshal would already
// base64-encode a []byte, but a generic []any slot loses that typing on
// decode, so this codec is explicit about it in both directions).
func (c *opcodeCodec) encodeBytesField(b []byte) any {
	if c.body.name == "messagepack" {
		return b
	}
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

func (c *opcodeCodec) decodeBytesField(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		return base64.StdEncoding.DecodeString(t)
	default:
		return nil, fmt.Errorf("%w: unexpected byte field type %T", ErrDecodeError, v)
	}
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case float64:
		return int64(t), true
	case float32:
		return int64(t), true
	default:
		return 0, false
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toStringMap(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprintf("%v", k)] = e
		}
		return out
	default:
		return nil
	}
}

func (c *opcodeCodec) EncodeMessage(m Message) ([]byte, error) {
	switch m.Kind {
	case KindAction:
		b := m.Action
		return c.body.marshal([]any{
			int(OpcodeAction), b.RequestID, b.TypeIdentifier, c.encodeBytesField(b.Payload),
		})
	case KindEvent:
		b := m.Event
		return c.body.marshal([]any{
			int(OpcodeEvent), int(b.Direction), b.Type, b.Payload.ToAny(), c.encodeBytesField(b.RawBody),
		})
	case KindJoin:
		b := m.Join
		var metadata any = b.Metadata
		if b.Metadata == nil {
			metadata = map[string]any{}
		}
		return c.body.marshal([]any{
			int(OpcodeJoin), b.RequestID, b.LandType, b.LandInstanceID, b.PlayerID, b.DeviceID, metadata,
		})
	case KindJoinResponse:
		b := m.JoinResponse
		return c.body.marshal([]any{
			int(OpcodeJoinResponse), b.RequestID, b.Success, b.LandType, b.LandInstanceID, b.PlayerSlot, b.Encoding, b.Reason,
		})
	case KindStateUpdate:
		return c.encodeBundled(*m.StateUpdate, nil)
	case KindPing:
		return c.body.marshal([]any{int(opcodePing), m.Ping.Nonce})
	case KindPong:
		return c.body.marshal([]any{int(opcodePong), m.Pong.Nonce})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
}

// encodeBundled renders opcode 107: a StateUpdateBody plus zero or more
// server-originated events it was bundled with, each re-encoded at the body
// level through this codec's own encoding so the outer array stays a
// uniform [opcode, updateBytes, [eventBytes, ...]] shape regardless of
// what's inside.
func (c *opcodeCodec) encodeBundled(update StateUpdateBody, events []EventBody) ([]byte, error) {
	updateBytes, err := c.body.marshal(update)
	if err != nil {
		return nil, err
	}
	eventBytes := make([][]byte, len(events))
	for i, e := range events {
		eb, err := c.body.marshal(e)
		if err != nil {
			return nil, err
		}
		eventBytes[i] = eb
	}
	return c.body.marshal([]any{
		int(OpcodeStateUpdateBundled),
		c.encodeBytesField(updateBytes),
		encodeByteSlices(c, eventBytes),
	})
}

func encodeByteSlices(c *opcodeCodec, slices [][]byte) []any {
	out := make([]any, len(slices))
	for i, s := range slices {
		out[i] = c.encodeBytesField(s)
	}
	return out
}

// EncodeBundled is the entry point opcode 107 bundling uses: a state update
// together with the server events it piggybacks. Callers that cannot use
// this bundled shape (e.g. because the negotiated codec has no opcode-form)
// fall back to sending the update and each event as standalone frames.
func EncodeBundled(c Codec, update StateUpdateBody, events []EventBody) ([]byte, bool) {
	oc, ok := c.(*opcodeCodec)
	if !ok {
		return nil, false
	}
	data, err := oc.encodeBundled(update, events)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *opcodeCodec) DecodeMessage(data []byte) (Message, error) {
	var arr []any
	if err := c.body.unmarshal(data, &arr); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecodeError, err)
	}
	if len(arr) == 0 {
		return Message{}, ErrMalformedArray
	}
	opInt, ok := toInt(arr[0])
	if !ok {
		return Message{}, ErrInvalidOpcode
	}
	op := Opcode(opInt)

	switch op {
	case OpcodeAction:
		if len(arr) < 4 {
			return Message{}, fmt.Errorf("%w: action needs 4 elements, got %d", ErrMalformedArray, len(arr))
		}
		payload, err := c.decodeBytesField(arr[3])
		if err != nil {
			return Message{}, err
		}
		return ActionMessage(ActionBody{
			RequestID:      toString(arr[1]),
			TypeIdentifier: toString(arr[2]),
			Payload:        payload,
		}), nil

	case OpcodeEvent:
		if len(arr) < 5 {
			return Message{}, fmt.Errorf("%w: event needs 5 elements, got %d", ErrMalformedArray, len(arr))
		}
		dir, _ := toInt(arr[1])
		raw, err := c.decodeBytesField(arr[4])
		if err != nil {
			return Message{}, err
		}
		return EventMessage(EventBody{
			Direction: Direction(dir),
			Type:      toString(arr[2]),
			Payload:   statetree.FromAny(arr[3]),
			RawBody:   raw,
		}), nil

	case OpcodeJoin:
		if len(arr) < 7 {
			return Message{}, fmt.Errorf("%w: join needs 7 elements, got %d", ErrMalformedArray, len(arr))
		}
		return JoinMessage(JoinBody{
			RequestID:      toString(arr[1]),
			LandType:       toString(arr[2]),
			LandInstanceID: toString(arr[3]),
			PlayerID:       toString(arr[4]),
			DeviceID:       toString(arr[5]),
			Metadata:       toStringMap(arr[6]),
		}), nil

	case OpcodeJoinResponse:
		if len(arr) < 8 {
			return Message{}, fmt.Errorf("%w: joinResponse needs 8 elements, got %d", ErrMalformedArray, len(arr))
		}
		slot, _ := toInt(arr[5])
		return JoinResponseMessage(JoinResponseBody{
			RequestID:      toString(arr[1]),
			Success:        toBool(arr[2]),
			LandType:       toString(arr[3]),
			LandInstanceID: toString(arr[4]),
			PlayerSlot:     int(slot),
			Encoding:       toString(arr[6]),
			Reason:         toString(arr[7]),
		}), nil

	case OpcodeStateUpdateBundled:
		if len(arr) < 3 {
			return Message{}, fmt.Errorf("%w: state update needs 3 elements, got %d", ErrMalformedArray, len(arr))
		}
		updateBytes, err := c.decodeBytesField(arr[1])
		if err != nil {
			return Message{}, err
		}
		var update StateUpdateBody
		if err := c.body.unmarshal(updateBytes, &update); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrDecodeError, err)
		}
		// Bundled events are recovered via DecodeBundledEvents; the
		// Message itself carries only the state update.
		return StateUpdateMessage(update), nil

	case opcodePing:
		if len(arr) < 2 {
			return Message{}, fmt.Errorf("%w: ping needs 2 elements, got %d", ErrMalformedArray, len(arr))
		}
		return PingMessage(PingBody{Nonce: toString(arr[1])}), nil

	case opcodePong:
		if len(arr) < 2 {
			return Message{}, fmt.Errorf("%w: pong needs 2 elements, got %d", ErrMalformedArray, len(arr))
		}
		return PongMessage(PongBody{Nonce: toString(arr[1])}), nil

	default:
		return Message{}, fmt.Errorf("%w: %d", ErrInvalidOpcode, opInt)
	}
}

// DecodeBundledEvents pulls the piggybacked server events back out of an
// opcode 107 frame. Returns ok=false if data isn't an opcode-107 frame
// encoded by this codec.
func DecodeBundledEvents(c Codec, data []byte) ([]EventBody, bool) {
	oc, ok := c.(*opcodeCodec)
	if !ok {
		return nil, false
	}
	var arr []any
	if err := oc.body.unmarshal(data, &arr); err != nil || len(arr) < 3 {
		return nil, false
	}
	opInt, ok := toInt(arr[0])
	if !ok || Opcode(opInt) != OpcodeStateUpdateBundled {
		return nil, false
	}
	rawList, ok := arr[2].([]any)
	if !ok {
		return nil, false
	}
	events := make([]EventBody, 0, len(rawList))
	for _, raw := range rawList {
		eb, err := oc.decodeBytesField(raw)
		if err != nil {
			return nil, false
		}
		var ev EventBody
		if err := oc.body.unmarshal(eb, &ev); err != nil {
			return nil, false
		}
		events = append(events, ev)
	}
	return events, true
}
