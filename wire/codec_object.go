package wire

import "fmt"

// objectCodec implements the object-form wire shape: a single tagged JSON
// (or messagepack-map) object with the body's fields inlined alongside
// "kind", e.g. {"kind":"join","requestID":"...",...}.
type objectCodec struct {
	body bodyCodec
}

func NewJSONCodec() Codec        { return &objectCodec{body: jsonBody} }
func NewMessagePackCodec() Codec { return &objectCodec{body: msgpackBody} }

func (c *objectCodec) Name() string { return c.body.name }

func (c *objectCodec) EncodeBody(v any) ([]byte, error) { return c.body.marshal(v) }

func (c *objectCodec) DecodeBody(data []byte, out any) error { return c.body.unmarshal(data, out) }

// Anonymous embedding makes both encoding/json and vmihailenco/msgpack
// flatten the body's own tagged fields up to the envelope's level, so "kind"
// sits next to e.g. "requestID" rather than nested under a "body" key.
type joinEnvelope struct {
	Kind Kind `json:"kind" msgpack:"kind"`
	JoinBody
}
type joinResponseEnvelope struct {
	Kind Kind `json:"kind" msgpack:"kind"`
	JoinResponseBody
}
type eventEnvelope struct {
	Kind Kind `json:"kind" msgpack:"kind"`
	EventBody
}
type actionEnvelope struct {
	Kind Kind `json:"kind" msgpack:"kind"`
	ActionBody
}
type stateUpdateEnvelope struct {
	Kind Kind `json:"kind" msgpack:"kind"`
	StateUpdateBody
}
type pingEnvelope struct {
	Kind Kind `json:"kind" msgpack:"kind"`
	PingBody
}
type pongEnvelope struct {
	Kind Kind `json:"kind" msgpack:"kind"`
	PongBody
}

func (c *objectCodec) EncodeMessage(m Message) ([]byte, error) {
	switch m.Kind {
	case KindJoin:
		return c.body.marshal(joinEnvelope{Kind: KindJoin, JoinBody: *m.Join})
	case KindJoinResponse:
		return c.body.marshal(joinResponseEnvelope{Kind: KindJoinResponse, JoinResponseBody: *m.JoinResponse})
	case KindEvent:
		return c.body.marshal(eventEnvelope{Kind: KindEvent, EventBody: *m.Event})
	case KindAction:
		return c.body.marshal(actionEnvelope{Kind: KindAction, ActionBody: *m.Action})
	case KindStateUpdate:
		return c.body.marshal(stateUpdateEnvelope{Kind: KindStateUpdate, StateUpdateBody: *m.StateUpdate})
	case KindPing:
		return c.body.marshal(pingEnvelope{Kind: KindPing, PingBody: *m.Ping})
	case KindPong:
		return c.body.marshal(pongEnvelope{Kind: KindPong, PongBody: *m.Pong})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
}

func (c *objectCodec) DecodeMessage(data []byte) (Message, error) {
	var probe struct {
		Kind Kind `json:"kind" msgpack:"kind"`
	}
	if err := c.body.unmarshal(data, &probe); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecodeError, err)
	}

	switch probe.Kind {
	case KindJoin:
		var env joinEnvelope
		if err := c.body.unmarshal(data, &env); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrDecodeError, err)
		}
		return JoinMessage(env.JoinBody), nil
	case KindJoinResponse:
		var env joinResponseEnvelope
		if err := c.body.unmarshal(data, &env); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrDecodeError, err)
		}
		return JoinResponseMessage(env.JoinResponseBody), nil
	case KindEvent:
		var env eventEnvelope
		if err := c.body.unmarshal(data, &env); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrDecodeError, err)
		}
		return EventMessage(env.EventBody), nil
	case KindAction:
		var env actionEnvelope
		if err := c.body.unmarshal(data, &env); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrDecodeError, err)
		}
		return ActionMessage(env.ActionBody), nil
	case KindStateUpdate:
		var env stateUpdateEnvelope
		if err := c.body.unmarshal(data, &env); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrDecodeError, err)
		}
		return StateUpdateMessage(env.StateUpdateBody), nil
	case KindPing:
		var env pingEnvelope
		if err := c.body.unmarshal(data, &env); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrDecodeError, err)
		}
		return PingMessage(env.PingBody), nil
	case KindPong:
		var env pongEnvelope
		if err := c.body.unmarshal(data, &env); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrDecodeError, err)
		}
		return PongMessage(env.PongBody), nil
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, probe.Kind)
	}
}
