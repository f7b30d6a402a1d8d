// Package keeper implements the per-land authoritative state actor: rule
// dispatch under a single exclusive lock, diff computation against each
// subscriber's last-acknowledged snapshot, and join/leave bookkeeping.
package keeper

import (
	"fmt"
	"reflect"
	"sync"

	"landkeeper/ids"
	"landkeeper/statetree"
	"landkeeper/wire"
)

// Event is a typed client- or rule-originated event dispatched against a
// land's state.
type Event struct {
	Type    string
	Payload statetree.Value
}

// TargetKind discriminates who an outbound event raised from a rule body is
// aimed at.
type TargetKind int

const (
	TargetBroadcast TargetKind = iota
	TargetSession
	TargetClient
	TargetPlayer
)

// Target names the recipient(s) of a rule-raised outbound event.
type Target struct {
	Kind      TargetKind
	SessionID ids.SessionID
	ClientID  ids.ClientID
	PlayerID  ids.PlayerID
}

func Broadcast() Target                        { return Target{Kind: TargetBroadcast} }
func ToSession(id ids.SessionID) Target         { return Target{Kind: TargetSession, SessionID: id} }
func ToClient(id ids.ClientID) Target           { return Target{Kind: TargetClient, ClientID: id} }
func ToPlayer(id ids.PlayerID) Target           { return Target{Kind: TargetPlayer, PlayerID: id} }

// OutboundEvent pairs a server-originated event with its delivery target.
// Rule bodies stage these via Context.Emit; the keeper hands the staged list
// back to its caller once the rule body returns successfully, rather than
// sending through a callback sink — a rule's mutation and its effects commit
// together, as one return value, which also sidesteps the reentrant-lock
// hazard a push-based sink would invite given the adapter is the keeper's
// only caller.
type OutboundEvent struct {
	Event  Event
	Target Target
}

// Context is threaded into every rule body. Services is an opaque handle
// to whatever application-level collaborators (RNG, clocks, id generators)
// the land's rules need; the keeper never inspects it.
type Context struct {
	PlayerID  ids.PlayerID
	ClientID  ids.ClientID
	SessionID ids.SessionID
	Services  any

	outbox *[]OutboundEvent
}

// Emit stages an outbound event. It is not sent until the enclosing rule
// body returns without error.
func (c *Context) Emit(event Event, target Target) {
	*c.outbox = append(*c.outbox, OutboundEvent{Event: event, Target: target})
}

// Rule mutates state in response to a client event.
type Rule[S any] func(state *S, event Event, ctx *Context) error

// JoinRule runs when a player joins, before the firstSync snapshot is taken.
type JoinRule[S any] func(state *S, ctx *Context) error

// LeaveRule runs when a player leaves.
type LeaveRule[S any] func(state *S, ctx *Context) error

// Definition is a land type: its rule table.
type Definition[S any] struct {
	OnJoin  []JoinRule[S]
	OnLeave []LeaveRule[S]
	Events  map[string][]Rule[S]
}

// JoinResult is what a successful Join returns: the assigned player and the
// snapshot (already filtered to that player's visibility) to send as
// firstSync.
type JoinResult struct {
	PlayerID ids.PlayerID
	Snapshot statetree.Value
}

// Keeper is the per-land authoritative state actor, generic over the
// application-defined state type S.
type Keeper[S any] struct {
	mu sync.Mutex

	landID   ids.LandID
	def      Definition[S]
	state    S
	policies []statetree.FieldPolicy

	players map[ids.SessionID]ids.PlayerID
	seq     uint64
}

// New constructs a Keeper for landID running def over initial state.
// Sync policies are read once from S's top-level struct tags.
func New[S any](landID ids.LandID, def Definition[S], initial S) *Keeper[S] {
	if def.Events == nil {
		def.Events = map[string][]Rule[S]{}
	}
	return &Keeper[S]{
		landID:   landID,
		def:      def,
		state:    initial,
		policies: statetree.Policies(reflect.TypeOf(initial)),
		players:  map[ids.SessionID]ids.PlayerID{},
	}
}

// LandID returns the land this keeper is authoritative for.
func (k *Keeper[S]) LandID() ids.LandID { return k.landID }

// CurrentState returns the live state value. S is expected to be a plain
// data struct; callers must not mutate the maps/slices reachable from it.
func (k *Keeper[S]) CurrentState() S {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// PlayerCount reports the number of distinct joined sessions.
func (k *Keeper[S]) PlayerCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.players)
}

// Join registers sessionID under playerID (if not already present), runs
// every OnJoin rule, and returns the post-join snapshot filtered to
// playerID's visibility.
func (k *Keeper[S]) Join(sessionID ids.SessionID, clientID ids.ClientID, playerID ids.PlayerID, services any) (JoinResult, []OutboundEvent, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, already := k.players[sessionID]; already {
		return JoinResult{}, nil, ErrAlreadyJoined
	}

	before, err := statetree.FromStruct(k.state)
	if err != nil {
		return JoinResult{}, nil, fmt.Errorf("keeper: snapshot before join: %w", err)
	}

	outbox := make([]OutboundEvent, 0)
	ctx := &Context{PlayerID: playerID, ClientID: clientID, SessionID: sessionID, Services: services, outbox: &outbox}

	for _, rule := range k.def.OnJoin {
		if err := rule(&k.state, ctx); err != nil {
			if rbErr := before.ToStruct(&k.state); rbErr != nil {
				return JoinResult{}, nil, fmt.Errorf("keeper: onJoin rollback: %w", rbErr)
			}
			return JoinResult{}, nil, fmt.Errorf("keeper: onJoin rule: %w", err)
		}
	}

	k.players[sessionID] = playerID
	k.seq++

	return JoinResult{PlayerID: playerID, Snapshot: k.snapshotFor(playerID)}, outbox, nil
}

// Leave runs every OnLeave rule and removes sessionID. Idempotent: a
// sessionID with no registered player is a no-op.
func (k *Keeper[S]) Leave(sessionID ids.SessionID) []OutboundEvent {
	k.mu.Lock()
	defer k.mu.Unlock()

	playerID, ok := k.players[sessionID]
	if !ok {
		return nil
	}

	outbox := make([]OutboundEvent, 0)
	ctx := &Context{PlayerID: playerID, SessionID: sessionID, outbox: &outbox}
	for _, rule := range k.def.OnLeave {
		// Leave rules run best-effort: there is no inbound caller left to
		// report a rejection to, so a failing leave rule's error is
		// discarded rather than aborting the removal.
		_ = rule(&k.state, ctx)
	}

	delete(k.players, sessionID)
	k.seq++
	return outbox
}

// HandleClientEvent dispatches event to every rule registered for its type.
// On any rule error, the state mutation staged so far by this dispatch is
// rolled back in full and the error is returned.
func (k *Keeper[S]) HandleClientEvent(sessionID ids.SessionID, event Event) ([]OutboundEvent, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	playerID, ok := k.players[sessionID]
	if !ok {
		return nil, ErrNotJoined
	}

	rules, ok := k.def.Events[event.Type]
	if !ok {
		return nil, ErrUnregisteredEvent
	}

	before, err := statetree.FromStruct(k.state)
	if err != nil {
		return nil, fmt.Errorf("keeper: snapshot before event: %w", err)
	}

	outbox := make([]OutboundEvent, 0)
	ctx := &Context{PlayerID: playerID, SessionID: sessionID, outbox: &outbox}

	for _, rule := range rules {
		if err := rule(&k.state, event, ctx); err != nil {
			// Decode into a fresh value: decoding into k.state would keep
			// map entries the failed rule added.
			var restored S
			if rbErr := before.ToStruct(&restored); rbErr != nil {
				return nil, fmt.Errorf("keeper: event rollback: %w", rbErr)
			}
			k.state = restored
			return nil, fmt.Errorf("keeper: event rule: %w", err)
		}
	}

	k.seq++
	return outbox, nil
}

// SubscribeStateUpdates computes the StateUpdate owed to one subscriber
// given the last snapshot it acknowledged (nil meaning it has none yet),
// filtered to playerID's visibility. It also returns the filtered snapshot
// the caller should store as that subscriber's new lastSnapshot.
func (k *Keeper[S]) SubscribeStateUpdates(playerID ids.PlayerID, lastSnapshot *statetree.Value) (wire.StateUpdateBody, statetree.Value) {
	k.mu.Lock()
	defer k.mu.Unlock()

	cur := k.snapshotFor(playerID)

	if lastSnapshot == nil {
		return wire.StateUpdateBody{Variant: wire.VariantFirstSync, Snapshot: cur, Seq: k.seq}, cur
	}
	if cur.Equal(*lastSnapshot) {
		return wire.StateUpdateBody{Variant: wire.VariantNoChange, Seq: k.seq}, *lastSnapshot
	}
	patches := statetree.Diff(*lastSnapshot, cur)
	return wire.StateUpdateBody{Variant: wire.VariantDiff, Patches: patches, Seq: k.seq}, cur
}

// snapshotFor renders the live state filtered to playerID's visibility.
// Callers must hold k.mu.
func (k *Keeper[S]) snapshotFor(playerID ids.PlayerID) statetree.Value {
	full, err := statetree.FromStruct(k.state)
	if err != nil {
		// State failed to serialize, which only happens if S carries a
		// field json cannot represent; surfacing that as an empty object
		// keeps the keeper alive rather than panicking across a rule
		// boundary for a caller that cannot act on it.
		return statetree.ObjectValue(map[string]statetree.Value{})
	}
	return statetree.Filter(full, k.policies, string(playerID))
}
