package transport

import (
	"errors"
	"log"
	"sync"
	"time"

	"landkeeper/ids"
	"landkeeper/keeper"
	"landkeeper/subscriber"
	"landkeeper/wire"
)

// AuthInfo is the opaque record an external validator produces at connect
// time: {playerID, deviceID, metadata}.
type AuthInfo struct {
	PlayerID ids.PlayerID
	DeviceID string
	Metadata map[string]any
}

// PlayerSession is the merged identity a join resolves to: explicit join
// fields, then AuthInfo, then a guest identity derived from the session,
// highest priority first; metadata is union-merged with join winning ties.
type PlayerSession struct {
	PlayerID ids.PlayerID
	DeviceID string
	Metadata map[string]any
}

// Adapter binds one land to the transport: it implements Delegate and
// drives the join handshake, send targeting, and ordering guarantees
// spec'd for the keeper/adapter pair. It is generic over the land's state
// type so it can call straight into a typed Keeper without an any-typed
// seam in the hot path.
type Adapter[S any] struct {
	mu sync.Mutex

	landID ids.LandID
	keeper *keeper.Keeper[S]
	out    Transport

	registry *subscriber.Registry

	// Non-stateUpdate frames (join, joinResponse, event, action, ping,
	// pong) use the session's pinned codec from codecBySession; msgCodec is
	// the fallback when a session's encoding name is not recognized.
	// stateCodec encodes stateUpdate frames,
	// standalone or opcode-107 bundled — spec.md §8 scenario 6's
	// encodingConfig = {message, stateUpdate} models exactly this split.
	msgCodec       wire.Codec
	stateCodec     wire.Codec
	codecBySession map[ids.SessionID]wire.Codec

	joinTimeout      time.Duration
	enableLegacyJoin bool
	maxPlayers       int
	services         any

	// pendingBroadcast accumulates broadcast-targeted server events raised
	// since the last SyncNow, for opportunistic opcode-107 bundling.
	pendingBroadcast []wire.EventBody
}

func NewAdapter[S any](
	landID ids.LandID,
	k *keeper.Keeper[S],
	out Transport,
	msgCodec, stateCodec wire.Codec,
	joinTimeout time.Duration,
	enableLegacyJoin bool,
	maxPlayers int,
	services any,
) *Adapter[S] {
	return &Adapter[S]{
		landID:           landID,
		keeper:           k,
		out:              out,
		registry:         subscriber.NewRegistry(),
		msgCodec:         msgCodec,
		stateCodec:       stateCodec,
		codecBySession:   map[ids.SessionID]wire.Codec{},
		joinTimeout:      joinTimeout,
		enableLegacyJoin: enableLegacyJoin,
		maxPlayers:       maxPlayers,
		services:         services,
	}
}

// landFullLocked reports whether this land is already at its configured
// maxPlayers. A maxPlayers of 0 means unlimited.
func (a *Adapter[S]) landFullLocked() bool {
	return a.maxPlayers > 0 && a.keeper.PlayerCount() >= a.maxPlayers
}

// LandID returns the land this adapter serves.
func (a *Adapter[S]) LandID() ids.LandID { return a.landID }

// PlayerCount reports the current joined-session count, for LandStats.
func (a *Adapter[S]) PlayerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.keeper.PlayerCount()
}

// IsJoined reports whether sessionID has completed a join.
func (a *Adapter[S]) IsJoined(sessionID ids.SessionID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	sub, ok := a.registry.Lookup(sessionID)
	return ok && sub.Joined
}

// Sessions returns every session currently registered with this adapter,
// joined or mid-handshake. Used by LandManager.RemoveLand to force-disconnect
// a land's occupants before tearing it down.
func (a *Adapter[S]) Sessions() []ids.SessionID {
	a.mu.Lock()
	defer a.mu.Unlock()
	subs := a.registry.All()
	out := make([]ids.SessionID, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub.SessionID)
	}
	return out
}

// OnConnect registers the connection and, if legacy join is enabled, joins
// it immediately using sessionID as a guest playerID. Used by transports
// that hand a connect event straight to this adapter without an
// intervening router that might forward an explicit join of its own.
func (a *Adapter[S]) OnConnect(sessionID ids.SessionID, clientID ids.ClientID, authInfo any, encoding string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.registerSessionLocked(sessionID, clientID, authInfo, encoding)

	if a.enableLegacyJoin {
		a.legacyJoin(sessionID, clientID, authInfo)
	}
}

// Register enrolls the connection without running legacy join, for a
// caller (the Router) that already holds an explicit join frame and is
// about to forward it via OnMessage — running legacy join here would race
// that forwarded join and lose it as a duplicate.
func (a *Adapter[S]) Register(sessionID ids.SessionID, clientID ids.ClientID, authInfo any, encoding string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registerSessionLocked(sessionID, clientID, authInfo, encoding)
}

func (a *Adapter[S]) registerSessionLocked(sessionID ids.SessionID, clientID ids.ClientID, authInfo any, encoding string) {
	codec := a.msgCodec
	if c, ok := wire.ByName(encoding); ok {
		codec = c
	}
	a.codecBySession[sessionID] = codec

	a.registry.Register(&subscriber.Subscriber{
		SessionID: sessionID,
		ClientID:  clientID,
		AuthInfo:  authInfo,
		Encoding:  codec.Name(),
	})
}

// OnDisconnect tears down sessionID's bookkeeping and runs the keeper's
// leave rules. Idempotent: an unknown session is a no-op.
func (a *Adapter[S]) OnDisconnect(sessionID ids.SessionID, clientID ids.ClientID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	outbox := a.keeper.Leave(sessionID)
	a.dispatchOutboundLocked(outbox)
	a.registry.Remove(sessionID)
	delete(a.codecBySession, sessionID)
}

// OnMessage decodes and dispatches one inbound frame.
func (a *Adapter[S]) OnMessage(data []byte, sessionID ids.SessionID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sub, ok := a.registry.Lookup(sessionID)
	if !ok {
		log.Printf("landkeeper: message from unregistered session %s", sessionID)
		return
	}

	codec := a.codecForLocked(sessionID)
	msg, err := codec.DecodeMessage(data)
	if err != nil {
		log.Printf("landkeeper: decode error from %s: %v", sessionID, err)
		return
	}

	switch msg.Kind {
	case wire.KindJoin:
		a.handleJoinLocked(sessionID, sub, *msg.Join)
	case wire.KindEvent:
		if msg.Event.Direction != wire.FromClient {
			return
		}
		if !sub.Joined {
			log.Printf("landkeeper: event %q from unjoined session %s", msg.Event.Type, sessionID)
			return
		}
		outbox, err := a.keeper.HandleClientEvent(sessionID, keeper.Event{Type: msg.Event.Type, Payload: msg.Event.Payload})
		if err != nil {
			log.Printf("landkeeper: event %q rejected for %s: %v", msg.Event.Type, sessionID, err)
			return
		}
		a.dispatchOutboundLocked(outbox)
	case wire.KindPing:
		a.sendMessageLocked(sessionID, wire.PongMessage(wire.PongBody{Nonce: msg.Ping.Nonce}))
	case wire.KindAction:
		log.Printf("landkeeper: action %q from %s has no registered handler", msg.Action.TypeIdentifier, sessionID)
	default:
		log.Printf("landkeeper: unexpected inbound kind %q from %s", msg.Kind, sessionID)
	}
}

func (a *Adapter[S]) handleJoinLocked(sessionID ids.SessionID, sub *subscriber.Subscriber, body wire.JoinBody) {
	if body.LandType != a.landID.LandType {
		log.Printf("landkeeper: %v: session %s wanted %q, land is %q", ErrMismatchedLand, sessionID, body.LandType, a.landID.LandType)
		a.sendJoinResponseLocked(sessionID, wire.JoinResponseBody{RequestID: body.RequestID, Success: false, Reason: "mismatched-land"})
		return
	}
	if sub.Joined {
		log.Printf("landkeeper: %v: session %s", ErrDuplicateJoin, sessionID)
		a.sendJoinResponseLocked(sessionID, wire.JoinResponseBody{RequestID: body.RequestID, Success: false, Reason: "duplicate"})
		return
	}
	if a.landFullLocked() {
		a.sendJoinResponseLocked(sessionID, wire.JoinResponseBody{RequestID: body.RequestID, Success: false, Reason: "land-full"})
		_ = a.out.Close(sessionID)
		return
	}

	authInfo, _ := sub.AuthInfo.(*AuthInfo)
	ps := a.preparePlayerSession(ids.PlayerID(body.PlayerID), body.DeviceID, body.Metadata, authInfo)

	result, outbox, err := a.performJoinWithTimeout(ps, sub.ClientID, sessionID)
	if err != nil {
		reason := "error"
		if errors.Is(err, ErrJoinTimeout) {
			reason = "timeout"
		}
		a.sendJoinResponseLocked(sessionID, wire.JoinResponseBody{RequestID: body.RequestID, Success: false, Reason: reason})
		if errors.Is(err, ErrJoinTimeout) {
			_ = a.out.Close(sessionID)
		}
		return
	}

	a.registry.SetJoined(sessionID, result.PlayerID, true)
	a.registry.SetInitialSyncing(sessionID, true)

	a.sendJoinResponseLocked(sessionID, wire.JoinResponseBody{
		RequestID:      body.RequestID,
		Success:        true,
		LandType:       a.landID.LandType,
		LandInstanceID: a.landID.LandInstanceID,
		PlayerSlot:     a.registry.Count(),
		Encoding:       sub.Encoding,
	})
	a.syncStateForNewPlayerLocked(sessionID, result.PlayerID)
	a.dispatchOutboundLocked(outbox)
}

// legacyJoin runs the same join sequence as an explicit join message, using
// sessionID as a guest playerID, for onConnect-is-a-join transports.
func (a *Adapter[S]) legacyJoin(sessionID ids.SessionID, clientID ids.ClientID, authInfoAny any) {
	if a.landFullLocked() {
		a.sendJoinResponseLocked(sessionID, wire.JoinResponseBody{Success: false, Reason: "land-full"})
		_ = a.out.Close(sessionID)
		return
	}

	authInfo, _ := authInfoAny.(*AuthInfo)
	ps := a.preparePlayerSession("", "", nil, authInfo)

	result, outbox, err := a.performJoinWithTimeout(ps, clientID, sessionID)
	if err != nil {
		log.Printf("landkeeper: legacy join failed for %s: %v", sessionID, err)
		return
	}

	a.registry.SetJoined(sessionID, result.PlayerID, true)
	a.registry.SetInitialSyncing(sessionID, true)

	sub, _ := a.registry.Lookup(sessionID)
	encoding := ""
	if sub != nil {
		encoding = sub.Encoding
	}
	a.sendJoinResponseLocked(sessionID, wire.JoinResponseBody{
		Success:        true,
		LandType:       a.landID.LandType,
		LandInstanceID: a.landID.LandInstanceID,
		PlayerSlot:     a.registry.Count(),
		Encoding:       encoding,
	})
	a.syncStateForNewPlayerLocked(sessionID, result.PlayerID)
	a.dispatchOutboundLocked(outbox)
}

// preparePlayerSession merges identity in priority order: explicit join
// fields, then authInfo, then a guest identity derived from sessionID.
// The sessionID-derived guest playerID is applied later, by
// performJoinWithTimeout, whenever the merged PlayerID is still empty.
func (a *Adapter[S]) preparePlayerSession(requestedPlayerID ids.PlayerID, deviceID string, metadata map[string]any, authInfo *AuthInfo) PlayerSession {
	ps := PlayerSession{Metadata: map[string]any{}}

	if authInfo != nil {
		if authInfo.PlayerID != "" {
			ps.PlayerID = authInfo.PlayerID
		}
		if authInfo.DeviceID != "" {
			ps.DeviceID = authInfo.DeviceID
		}
		for k, v := range authInfo.Metadata {
			ps.Metadata[k] = v
		}
	}
	if requestedPlayerID != "" {
		ps.PlayerID = requestedPlayerID
	}
	if deviceID != "" {
		ps.DeviceID = deviceID
	}
	for k, v := range metadata {
		ps.Metadata[k] = v
	}
	return ps
}

// performJoinWithTimeout runs keeper.Join and enforces the configured join
// timeout; a rule body that never returns is a programming error the keeper
// itself does not guard against, so this is the only place join latency is
// bounded.
func (a *Adapter[S]) performJoinWithTimeout(ps PlayerSession, clientID ids.ClientID, sessionID ids.SessionID) (keeper.JoinResult, []keeper.OutboundEvent, error) {
	playerID := ps.PlayerID
	if playerID == "" {
		playerID = ids.PlayerID(sessionID)
	}

	type joinOutcome struct {
		result keeper.JoinResult
		outbox []keeper.OutboundEvent
		err    error
	}
	ch := make(chan joinOutcome, 1)
	go func() {
		r, o, err := a.keeper.Join(sessionID, clientID, playerID, a.services)
		ch <- joinOutcome{r, o, err}
	}()

	select {
	case out := <-ch:
		return out.result, out.outbox, out.err
	case <-time.After(a.joinTimeout):
		// The rule body may still complete after this point and register a
		// player the caller never learns about (the session is closed on
		// timeout, so it has no subscriber entry). Reap that outcome instead
		// of leaving it orphaned in the keeper.
		go func() {
			out := <-ch
			if out.err == nil {
				a.keeper.Leave(sessionID)
			}
		}()
		return keeper.JoinResult{}, nil, ErrJoinTimeout
	}
}

func (a *Adapter[S]) syncStateForNewPlayerLocked(sessionID ids.SessionID, playerID ids.PlayerID) {
	update, cur := a.keeper.SubscribeStateUpdates(playerID, nil)
	a.sendStateUpdateLocked(sessionID, update, nil)
	a.registry.UpdateSnapshot(sessionID, cur)
	a.registry.SetInitialSyncing(sessionID, false)
}

// SyncNow sends every joined, non-initial-syncing subscriber the StateUpdate
// it's owed, bundling this cycle's accumulated broadcast events in where the
// state codec supports it.
func (a *Adapter[S]) SyncNow() {
	a.mu.Lock()
	defer a.mu.Unlock()

	events := a.pendingBroadcast
	a.pendingBroadcast = nil

	for _, sub := range a.registry.All() {
		if !sub.Joined || sub.InitialSyncing {
			continue
		}
		update, cur := a.keeper.SubscribeStateUpdates(sub.PlayerID, sub.LastSnapshot)
		a.registry.UpdateSnapshot(sub.SessionID, cur)

		if update.Variant == wire.VariantNoChange && len(events) == 0 {
			continue
		}
		a.sendStateUpdateLocked(sub.SessionID, update, events)
	}
}

// sendStateUpdateLocked sends a state update, bundled with events via
// opcode 107 when the state codec supports it, else as a standalone state
// frame followed by each event as its own standalone frame — never
// silently dropping a bundled event on codec mismatch.
func (a *Adapter[S]) sendStateUpdateLocked(sessionID ids.SessionID, update wire.StateUpdateBody, events []wire.EventBody) {
	if data, ok := wire.EncodeBundled(a.stateCodec, update, events); ok {
		a.send(sessionID, data)
		return
	}
	if data, err := a.stateCodec.EncodeMessage(wire.StateUpdateMessage(update)); err == nil {
		a.send(sessionID, data)
	} else {
		log.Printf("landkeeper: encode stateUpdate for %s: %v", sessionID, err)
	}
	codec := a.codecForLocked(sessionID)
	for _, eb := range events {
		if data, err := codec.EncodeMessage(wire.EventMessage(eb)); err == nil {
			a.send(sessionID, data)
		} else {
			log.Printf("landkeeper: encode fallback event for %s: %v", sessionID, err)
		}
	}
}

// SendEvent is the adapter's public send-targeting API: broadcast events
// are deferred for the next SyncNow's bundling opportunity, others are sent
// immediately as their own frame.
func (a *Adapter[S]) SendEvent(event keeper.Event, target keeper.Target) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dispatchOutboundLocked([]keeper.OutboundEvent{{Event: event, Target: target}})
}

func (a *Adapter[S]) dispatchOutboundLocked(outbox []keeper.OutboundEvent) {
	for _, oe := range outbox {
		eb := wire.EventBody{Direction: wire.FromServer, Type: oe.Event.Type, Payload: oe.Event.Payload}
		switch oe.Target.Kind {
		case keeper.TargetBroadcast:
			a.pendingBroadcast = append(a.pendingBroadcast, eb)
		case keeper.TargetSession:
			a.sendEventNowLocked(oe.Target.SessionID, eb)
		case keeper.TargetClient:
			if sessionID, ok := a.registry.LookupByClient(oe.Target.ClientID); ok {
				a.sendEventNowLocked(sessionID, eb)
			}
		case keeper.TargetPlayer:
			for _, sessionID := range a.registry.SessionsForPlayer(oe.Target.PlayerID) {
				a.sendEventNowLocked(sessionID, eb)
			}
		}
	}
}

func (a *Adapter[S]) sendEventNowLocked(sessionID ids.SessionID, eb wire.EventBody) {
	a.sendMessageLocked(sessionID, wire.EventMessage(eb))
}

func (a *Adapter[S]) sendMessageLocked(sessionID ids.SessionID, msg wire.Message) {
	codec := a.codecForLocked(sessionID)
	data, err := codec.EncodeMessage(msg)
	if err != nil {
		log.Printf("landkeeper: encode %s for %s: %v", msg.Kind, sessionID, err)
		return
	}
	a.send(sessionID, data)
}

func (a *Adapter[S]) sendJoinResponseLocked(sessionID ids.SessionID, body wire.JoinResponseBody) {
	a.sendMessageLocked(sessionID, wire.JoinResponseMessage(body))
}

func (a *Adapter[S]) codecForLocked(sessionID ids.SessionID) wire.Codec {
	if c, ok := a.codecBySession[sessionID]; ok {
		return c
	}
	return a.msgCodec
}

func (a *Adapter[S]) send(sessionID ids.SessionID, data []byte) {
	if err := a.out.Send(data, ToSession(sessionID)); err != nil {
		log.Printf("landkeeper: send to %s: %v", sessionID, err)
	}
}
