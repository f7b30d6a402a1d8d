// Package router implements LandRouter: the one per-process dispatcher that
// fans a transport's sessions out across many lands, binding each session to
// a LandID the moment its first join message names one.
package router

import (
	"log"
	"sync"

	"landkeeper/ids"
	"landkeeper/land"
	"landkeeper/transport"
	"landkeeper/wire"
)

// DefaultLandInstanceID is used when a join omits landInstanceId, giving
// every land type a well-known singleton instance by default.
const DefaultLandInstanceID = "default"

// pendingConn is the connection context recorded before a session has
// chosen a land, so it can be handed to that land's adapter at bind time.
type pendingConn struct {
	clientID ids.ClientID
	authInfo any
	encoding string
}

// Router dispatches transport lifecycle events across lands. It satisfies
// transport.Delegate itself, so a concrete Transport can be wired directly
// to a Router instead of to any single land's adapter.
type Router struct {
	mu sync.Mutex

	manager   *land.Manager
	transport transport.Transport
	types     map[string]land.Factory

	bindings map[ids.SessionID]ids.LandID
	pending  map[ids.SessionID]pendingConn
}

func New(manager *land.Manager, tr transport.Transport) *Router {
	return &Router{
		manager:   manager,
		transport: tr,
		types:     map[string]land.Factory{},
		bindings:  map[ids.SessionID]ids.LandID{},
		pending:   map[ids.SessionID]pendingConn{},
	}
}

// RegisterLandType associates a landType name with the factory used to
// build a fresh land.Adapter the first time that type/instance is joined.
func (r *Router) RegisterLandType(landType string, factory land.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[landType] = factory
}

// OnConnect records the connection; no land is bound yet.
func (r *Router) OnConnect(sessionID ids.SessionID, clientID ids.ClientID, authInfo any, encoding string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[sessionID] = pendingConn{clientID: clientID, authInfo: authInfo, encoding: encoding}
}

// OnDisconnect forwards to the bound adapter, if any, and clears bookkeeping.
func (r *Router) OnDisconnect(sessionID ids.SessionID, clientID ids.ClientID) {
	r.mu.Lock()
	landID, bound := r.bindings[sessionID]
	delete(r.bindings, sessionID)
	delete(r.pending, sessionID)
	r.mu.Unlock()

	if !bound {
		return
	}
	if c, ok := r.manager.GetLand(landID); ok {
		c.Adapter.OnDisconnect(sessionID, clientID)
	}
}

// OnMessage binds an unbound session on its first join, rejects a join to a
// different land on an already-bound session, and otherwise forwards the
// raw frame unchanged to the bound adapter.
func (r *Router) OnMessage(data []byte, sessionID ids.SessionID) {
	r.mu.Lock()
	landID, bound := r.bindings[sessionID]
	pending := r.pending[sessionID]
	r.mu.Unlock()

	codec, ok := wire.ByName(pending.encoding)
	if !ok {
		codec = wire.NewJSONCodec()
	}

	if !bound {
		r.bindUnboundSession(data, sessionID, pending, codec)
		return
	}

	msg, err := codec.DecodeMessage(data)
	if err == nil && msg.Kind == wire.KindJoin && !sameLand(msg.Join, landID) {
		r.rejectAlreadyBound(sessionID, codec, msg.Join.RequestID)
		return
	}

	if c, ok := r.manager.GetLand(landID); ok {
		c.Adapter.OnMessage(data, sessionID)
	}
}

func sameLand(body *wire.JoinBody, bound ids.LandID) bool {
	instance := body.LandInstanceID
	if instance == "" {
		instance = DefaultLandInstanceID
	}
	return body.LandType == bound.LandType && instance == bound.LandInstanceID
}

func (r *Router) bindUnboundSession(data []byte, sessionID ids.SessionID, pending pendingConn, codec wire.Codec) {
	msg, err := codec.DecodeMessage(data)
	if err != nil || msg.Kind != wire.KindJoin {
		log.Printf("landkeeper: router dropped non-join frame from unbound session %s", sessionID)
		return
	}

	r.mu.Lock()
	factory, known := r.types[msg.Join.LandType]
	r.mu.Unlock()
	if !known {
		r.sendJoinFailure(sessionID, codec, msg.Join.RequestID, "unknown-land-type")
		return
	}

	instance := msg.Join.LandInstanceID
	if instance == "" {
		instance = DefaultLandInstanceID
	}
	landID := ids.LandID{LandType: msg.Join.LandType, LandInstanceID: instance}
	container, err := r.manager.GetOrCreateLand(landID, factory)
	if err != nil {
		r.sendJoinFailure(sessionID, codec, msg.Join.RequestID, "land-full")
		return
	}

	r.mu.Lock()
	r.bindings[sessionID] = landID
	r.mu.Unlock()

	// Register, not OnConnect: the join frame in hand is about to be
	// forwarded below, so a connect-time legacy join here would beat it to
	// handleJoinLocked and get rejected as a duplicate.
	container.Adapter.Register(sessionID, pending.clientID, pending.authInfo, pending.encoding)
	container.Adapter.OnMessage(data, sessionID)
}

func (r *Router) rejectAlreadyBound(sessionID ids.SessionID, codec wire.Codec, requestID string) {
	log.Printf("landkeeper: %v: session %s", transport.ErrAlreadyBound, sessionID)
	r.sendJoinFailure(sessionID, codec, requestID, "already-bound")
}

func (r *Router) sendJoinFailure(sessionID ids.SessionID, codec wire.Codec, requestID, reason string) {
	msg := wire.JoinResponseMessage(wire.JoinResponseBody{RequestID: requestID, Success: false, Reason: reason})
	data, err := codec.EncodeMessage(msg)
	if err != nil {
		log.Printf("landkeeper: router encode join failure for %s: %v", sessionID, err)
		return
	}
	if err := r.transport.Send(data, transport.ToSession(sessionID)); err != nil {
		log.Printf("landkeeper: router send join failure for %s: %v", sessionID, err)
	}
}
