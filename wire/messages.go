// Package wire implements the transport frame codec: the TransportMessage
// sum type and both on-wire shapes (object form, opcode form) spec.md §4.A
// requires, plus the body-level (re-)encoding opcode 107 bundling needs.
package wire

import "landkeeper/statetree"

// Kind discriminates the TransportMessage sum type.
type Kind string

const (
	KindJoin         Kind = "join"
	KindJoinResponse Kind = "joinResponse"
	KindEvent        Kind = "event"
	KindAction       Kind = "action"
	KindStateUpdate  Kind = "stateUpdate"
	KindPing         Kind = "ping"
	KindPong         Kind = "pong"
)

// Opcode is the positional-array form's leading discriminant.
type Opcode int

const (
	OpcodeAction              Opcode = 101
	OpcodeEvent               Opcode = 103
	OpcodeJoin                Opcode = 104
	OpcodeJoinResponse        Opcode = 105
	OpcodeStateUpdateBundled  Opcode = 107
)

var opcodeToKind = map[Opcode]Kind{
	OpcodeAction:             KindAction,
	OpcodeEvent:               KindEvent,
	OpcodeJoin:                KindJoin,
	OpcodeJoinResponse:        KindJoinResponse,
	OpcodeStateUpdateBundled:  KindStateUpdate,
}

// Direction discriminates who originated an event.
type Direction int

const (
	FromClient Direction = 0
	FromServer Direction = 1
)

// JoinBody is the payload of a `join` message.
type JoinBody struct {
	RequestID      string         `json:"requestID" msgpack:"requestID"`
	LandType       string         `json:"landType" msgpack:"landType"`
	LandInstanceID string         `json:"landInstanceId,omitempty" msgpack:"landInstanceId,omitempty"`
	PlayerID       string         `json:"playerID,omitempty" msgpack:"playerID,omitempty"`
	DeviceID       string         `json:"deviceID,omitempty" msgpack:"deviceID,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// JoinResponseBody is the payload of a `joinResponse` message.
type JoinResponseBody struct {
	RequestID      string `json:"requestID" msgpack:"requestID"`
	Success        bool   `json:"success" msgpack:"success"`
	LandType       string `json:"landType,omitempty" msgpack:"landType,omitempty"`
	LandInstanceID string `json:"landInstanceId,omitempty" msgpack:"landInstanceId,omitempty"`
	PlayerSlot     int    `json:"playerSlot,omitempty" msgpack:"playerSlot,omitempty"`
	Encoding       string `json:"encoding,omitempty" msgpack:"encoding,omitempty"`
	Reason         string `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

// EventBody is the payload of an `event` message: a client-originated or
// server-originated application event.
type EventBody struct {
	Direction Direction        `json:"direction" msgpack:"direction"`
	Type      string           `json:"type" msgpack:"type"`
	Payload   statetree.Value  `json:"payload" msgpack:"payload"`
	RawBody   []byte           `json:"rawBody,omitempty" msgpack:"rawBody,omitempty"`
}

// ActionBody is the payload of an `action` message: an opaque
// request/response-style call distinct from fire-and-forget events.
type ActionBody struct {
	RequestID      string `json:"requestID" msgpack:"requestID"`
	TypeIdentifier string `json:"typeIdentifier" msgpack:"typeIdentifier"`
	Payload        []byte `json:"payload" msgpack:"payload"`
}

// StateUpdateVariant discriminates the three StateUpdate shapes: firstSync,
// diff, or noChange.
type StateUpdateVariant int

const (
	VariantFirstSync StateUpdateVariant = iota
	VariantDiff
	VariantNoChange
)

// StateUpdateBody is the payload of a `stateUpdate` message.
type StateUpdateBody struct {
	Variant  StateUpdateVariant `json:"variant" msgpack:"variant"`
	Snapshot statetree.Value    `json:"snapshot,omitempty" msgpack:"snapshot,omitempty"`
	Patches  []statetree.Patch  `json:"patches,omitempty" msgpack:"patches,omitempty"`
	Seq      uint64             `json:"seq,omitempty" msgpack:"seq,omitempty"`
}

// PingBody / PongBody carry a liveness nonce.
type PingBody struct {
	Nonce string `json:"nonce" msgpack:"nonce"`
}
type PongBody struct {
	Nonce string `json:"nonce" msgpack:"nonce"`
}

// Message is the TransportMessage sum type. Exactly one of the pointer
// fields matching Kind is populated.
type Message struct {
	Kind Kind

	Join         *JoinBody
	JoinResponse *JoinResponseBody
	Event        *EventBody
	Action       *ActionBody
	StateUpdate  *StateUpdateBody
	Ping         *PingBody
	Pong         *PongBody
}

func JoinMessage(b JoinBody) Message                 { return Message{Kind: KindJoin, Join: &b} }
func JoinResponseMessage(b JoinResponseBody) Message { return Message{Kind: KindJoinResponse, JoinResponse: &b} }
func EventMessage(b EventBody) Message               { return Message{Kind: KindEvent, Event: &b} }
func ActionMessage(b ActionBody) Message             { return Message{Kind: KindAction, Action: &b} }
func StateUpdateMessage(b StateUpdateBody) Message   { return Message{Kind: KindStateUpdate, StateUpdate: &b} }
func PingMessage(b PingBody) Message                 { return Message{Kind: KindPing, Ping: &b} }
func PongMessage(b PongBody) Message                 { return Message{Kind: KindPong, Pong: &b} }
