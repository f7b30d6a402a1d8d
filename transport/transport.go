// Package transport implements the session-to-keeper bridge: the join
// handshake, outbound ordering guarantees, and opcode-107 bundling policy
// that sit between a land's LandKeeper and the external wire transport.
package transport

import "landkeeper/ids"

// TargetKind discriminates the recipients a Transport.Send call reaches.
// Transport itself knows only sessions and clients; player-addressed sends
// are resolved to one or more sessions by the Adapter before calling Send.
type TargetKind int

const (
	SendBroadcast TargetKind = iota
	SendSession
	SendClient
)

// SendTarget names who a raw frame is sent to at the transport level.
type SendTarget struct {
	Kind      TargetKind
	SessionID ids.SessionID
	ClientID  ids.ClientID
}

func Broadcast() SendTarget                { return SendTarget{Kind: SendBroadcast} }
func ToSession(id ids.SessionID) SendTarget { return SendTarget{Kind: SendSession, SessionID: id} }
func ToClient(id ids.ClientID) SendTarget   { return SendTarget{Kind: SendClient, ClientID: id} }

// Transport is the external collaborator: a concrete WebSocket/HTTP listener
// that knows nothing about lands or state, only sessions and bytes.
type Transport interface {
	Start() error
	Stop() error
	Send(data []byte, target SendTarget) error
	// Close forcibly disconnects one session, used both for join-timeout
	// disposal and for removeLand's force-disconnect of joined sessions.
	Close(sessionID ids.SessionID) error
}

// Delegate receives connection lifecycle events from a Transport. encoding
// names the wire.Codec this session's frames are carried in, pinned at
// connect time (e.g. from a query parameter) rather than renegotiated
// per-message, since the first frame can't be decoded before its codec is
// known.
type Delegate interface {
	OnConnect(sessionID ids.SessionID, clientID ids.ClientID, authInfo any, encoding string)
	OnMessage(data []byte, sessionID ids.SessionID)
	OnDisconnect(sessionID ids.SessionID, clientID ids.ClientID)
}
