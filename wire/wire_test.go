package wire

import (
	"errors"
	"testing"

	"landkeeper/statetree"
)

func sampleMessages() []Message {
	return []Message{
		JoinMessage(JoinBody{
			RequestID: "r1", LandType: "table", LandInstanceID: "t1",
			PlayerID: "p1", DeviceID: "d1",
			Metadata: map[string]any{"name": "alice"},
		}),
		JoinResponseMessage(JoinResponseBody{
			RequestID: "r1", Success: true, LandType: "table",
			LandInstanceID: "t1", PlayerSlot: 2, Encoding: "json",
		}),
		EventMessage(EventBody{
			Direction: FromClient, Type: "move",
			Payload: statetree.ObjectValue(map[string]statetree.Value{
				"x": statetree.IntValue(3),
				"y": statetree.IntValue(4),
			}),
		}),
		EventMessage(EventBody{
			Direction: FromServer, Type: "ack",
			Payload: statetree.Null,
			RawBody:  []byte{0x01, 0x02, 0x03},
		}),
		ActionMessage(ActionBody{RequestID: "a1", TypeIdentifier: "rollDice", Payload: []byte("seed")}),
		StateUpdateMessage(StateUpdateBody{
			Variant: VariantDiff,
			Patches: []statetree.Patch{
				{Path: "/count", Op: statetree.SetOp(statetree.IntValue(5))},
			},
			Seq: 7,
		}),
		PingMessage(PingBody{Nonce: "n1"}),
		PongMessage(PongBody{Nonce: "n1"}),
	}
}

func codecsUnderTest() map[string]Codec {
	return map[string]Codec{
		"json":               NewJSONCodec(),
		"messagepack":        NewMessagePackCodec(),
		"opcode-json":        NewOpcodeJSONCodec(),
		"opcode-messagepack": NewOpcodeMessagePackCodec(),
	}
}

func TestRoundTripAllKindsAllCodecs(t *testing.T) {
	for name, c := range codecsUnderTest() {
		for _, m := range sampleMessages() {
			data, err := c.EncodeMessage(m)
			if err != nil {
				t.Fatalf("[%s] encode %s: %v", name, m.Kind, err)
			}
			decoded, err := c.DecodeMessage(data)
			if err != nil {
				t.Fatalf("[%s] decode %s: %v", name, m.Kind, err)
			}
			if decoded.Kind != m.Kind {
				t.Fatalf("[%s] kind mismatch: got %s want %s", name, decoded.Kind, m.Kind)
			}
			assertMessageEqual(t, name, m, decoded)
		}
	}
}

func assertMessageEqual(t *testing.T, codecName string, want, got Message) {
	t.Helper()
	switch want.Kind {
	case KindJoin:
		if got.Join.RequestID != want.Join.RequestID || got.Join.PlayerID != want.Join.PlayerID {
			t.Errorf("[%s] join mismatch: got %+v want %+v", codecName, got.Join, want.Join)
		}
	case KindJoinResponse:
		if got.JoinResponse.PlayerSlot != want.JoinResponse.PlayerSlot || got.JoinResponse.Success != want.JoinResponse.Success {
			t.Errorf("[%s] joinResponse mismatch: got %+v want %+v", codecName, got.JoinResponse, want.JoinResponse)
		}
	case KindEvent:
		if got.Event.Type != want.Event.Type || !got.Event.Payload.Equal(want.Event.Payload) {
			t.Errorf("[%s] event mismatch: got %+v want %+v", codecName, got.Event, want.Event)
		}
		if string(got.Event.RawBody) != string(want.Event.RawBody) {
			t.Errorf("[%s] event rawBody mismatch: got %v want %v", codecName, got.Event.RawBody, want.Event.RawBody)
		}
	case KindAction:
		if got.Action.TypeIdentifier != want.Action.TypeIdentifier || string(got.Action.Payload) != string(want.Action.Payload) {
			t.Errorf("[%s] action mismatch: got %+v want %+v", codecName, got.Action, want.Action)
		}
	case KindStateUpdate:
		if got.StateUpdate.Variant != want.StateUpdate.Variant || got.StateUpdate.Seq != want.StateUpdate.Seq {
			t.Errorf("[%s] stateUpdate mismatch: got %+v want %+v", codecName, got.StateUpdate, want.StateUpdate)
		}
		if len(got.StateUpdate.Patches) != len(want.StateUpdate.Patches) {
			t.Errorf("[%s] stateUpdate patch count mismatch", codecName)
		}
	case KindPing:
		if got.Ping.Nonce != want.Ping.Nonce {
			t.Errorf("[%s] ping mismatch", codecName)
		}
	case KindPong:
		if got.Pong.Nonce != want.Pong.Nonce {
			t.Errorf("[%s] pong mismatch", codecName)
		}
	}
}

func TestOpcodeBundlingRoundTrip(t *testing.T) {
	for name, c := range map[string]Codec{
		"opcode-json":        NewOpcodeJSONCodec(),
		"opcode-messagepack": NewOpcodeMessagePackCodec(),
	} {
		update := StateUpdateBody{
			Variant: VariantDiff,
			Patches: []statetree.Patch{{Path: "/hp", Op: statetree.SetOp(statetree.IntValue(10))}},
			Seq:     3,
		}
		events := []EventBody{
			{Direction: FromServer, Type: "damage", Payload: statetree.IntValue(5)},
			{Direction: FromServer, Type: "heal", Payload: statetree.IntValue(2)},
		}

		data, ok := EncodeBundled(c, update, events)
		if !ok {
			t.Fatalf("[%s] EncodeBundled reported not supported", name)
		}

		msg, err := c.DecodeMessage(data)
		if err != nil {
			t.Fatalf("[%s] decode bundled frame: %v", name, err)
		}
		if msg.Kind != KindStateUpdate || msg.StateUpdate.Seq != 3 {
			t.Fatalf("[%s] unexpected decoded update: %+v", name, msg.StateUpdate)
		}

		gotEvents, ok := DecodeBundledEvents(c, data)
		if !ok {
			t.Fatalf("[%s] DecodeBundledEvents reported not supported", name)
		}
		if len(gotEvents) != 2 || gotEvents[0].Type != "damage" || gotEvents[1].Type != "heal" {
			t.Fatalf("[%s] unexpected bundled events: %+v", name, gotEvents)
		}
	}
}

func TestObjectCodecRejectsUnknownKind(t *testing.T) {
	_, err := NewJSONCodec().DecodeMessage([]byte(`{"kind":"bogus"}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestOpcodeCodecRejectsShortArray(t *testing.T) {
	data, _ := NewOpcodeJSONCodec().(*opcodeCodec).body.marshal([]any{int(OpcodeJoin), "only-one-field"})
	_, err := NewOpcodeJSONCodec().DecodeMessage(data)
	if !errors.Is(err, ErrMalformedArray) {
		t.Fatalf("expected ErrMalformedArray, got %v", err)
	}
}

func TestOpcodeCodecRejectsUnknownOpcode(t *testing.T) {
	data, _ := NewOpcodeJSONCodec().(*opcodeCodec).body.marshal([]any{999})
	_, err := NewOpcodeJSONCodec().DecodeMessage(data)
	if !errors.Is(err, ErrInvalidOpcode) {
		t.Fatalf("expected ErrInvalidOpcode, got %v", err)
	}
}

func TestOpcodeCodecRejectsEmptyArray(t *testing.T) {
	data, _ := NewOpcodeJSONCodec().(*opcodeCodec).body.marshal([]any{})
	_, err := NewOpcodeJSONCodec().DecodeMessage(data)
	if !errors.Is(err, ErrMalformedArray) {
		t.Fatalf("expected ErrMalformedArray, got %v", err)
	}
}

func TestByNameResolvesAllFourEncodings(t *testing.T) {
	for _, name := range []string{"json", "messagepack", "opcode-json", "opcode-messagepack"} {
		c, ok := ByName(name)
		if !ok {
			t.Fatalf("expected ByName(%q) to resolve", name)
		}
		if c.Name() != name {
			t.Fatalf("expected codec name %q, got %q", name, c.Name())
		}
	}
	if _, ok := ByName("xml"); ok {
		t.Fatalf("expected ByName(\"xml\") to fail")
	}
}
