// Package subscriber implements the per-land subscriber registry: session
// bookkeeping for one adapter's joined and in-flight connections.
package subscriber

import (
	"landkeeper/ids"
	"landkeeper/statetree"
)

// Subscriber is one session's bookkeeping record within an adapter.
type Subscriber struct {
	SessionID ids.SessionID
	ClientID  ids.ClientID
	PlayerID  ids.PlayerID
	AuthInfo  any

	Joined         bool
	InitialSyncing bool
	LastSnapshot   *statetree.Value

	// Encoding is the wire.Codec name this session negotiated at join time.
	Encoding string
}

// Registry maps SessionID to Subscriber plus the reverse indexes a land
// needs: ClientID -> SessionID and PlayerID -> set of SessionID. It is
// single-writer, owned exclusively by its adapter; none of its methods
// synchronize internally.
type Registry struct {
	byID     map[ids.SessionID]*Subscriber
	byClient map[ids.ClientID]ids.SessionID
	byPlayer map[ids.PlayerID]map[ids.SessionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byID:     map[ids.SessionID]*Subscriber{},
		byClient: map[ids.ClientID]ids.SessionID{},
		byPlayer: map[ids.PlayerID]map[ids.SessionID]struct{}{},
	}
}

// Register adds a new subscriber record, replacing any prior record for the
// same SessionID.
func (r *Registry) Register(sub *Subscriber) {
	r.byID[sub.SessionID] = sub
	if sub.ClientID != "" {
		r.byClient[sub.ClientID] = sub.SessionID
	}
	if sub.PlayerID != "" {
		r.addPlayerIndex(sub.PlayerID, sub.SessionID)
	}
}

// Lookup returns the subscriber record for sessionID, if any.
func (r *Registry) Lookup(sessionID ids.SessionID) (*Subscriber, bool) {
	sub, ok := r.byID[sessionID]
	return sub, ok
}

// LookupByClient resolves a stable client identity to its current session,
// if connected.
func (r *Registry) LookupByClient(clientID ids.ClientID) (ids.SessionID, bool) {
	sessionID, ok := r.byClient[clientID]
	return sessionID, ok
}

// SessionsForPlayer returns every connected session bound to playerID
// (a player may span multiple clients/sessions at once).
func (r *Registry) SessionsForPlayer(playerID ids.PlayerID) []ids.SessionID {
	set := r.byPlayer[playerID]
	out := make([]ids.SessionID, 0, len(set))
	for sessionID := range set {
		out = append(out, sessionID)
	}
	return out
}

// SetJoined marks sessionID's joined flag and records its PlayerID, adding
// the reverse index entry.
func (r *Registry) SetJoined(sessionID ids.SessionID, playerID ids.PlayerID, joined bool) {
	sub, ok := r.byID[sessionID]
	if !ok {
		return
	}
	sub.Joined = joined
	if joined {
		sub.PlayerID = playerID
		r.addPlayerIndex(playerID, sessionID)
	}
}

// SetInitialSyncing toggles the join-ordering guard: while true, syncNow
// must skip this subscriber.
func (r *Registry) SetInitialSyncing(sessionID ids.SessionID, syncing bool) {
	if sub, ok := r.byID[sessionID]; ok {
		sub.InitialSyncing = syncing
	}
}

// UpdateSnapshot records the snapshot a subscriber just acknowledged
// receiving, the baseline the next diff will be computed against.
func (r *Registry) UpdateSnapshot(sessionID ids.SessionID, snapshot statetree.Value) {
	if sub, ok := r.byID[sessionID]; ok {
		sub.LastSnapshot = &snapshot
	}
}

// Remove deletes sessionID and every reverse-index entry pointing to it.
func (r *Registry) Remove(sessionID ids.SessionID) {
	sub, ok := r.byID[sessionID]
	if !ok {
		return
	}
	delete(r.byID, sessionID)
	if sub.ClientID != "" {
		delete(r.byClient, sub.ClientID)
	}
	if sub.PlayerID != "" {
		if set, ok := r.byPlayer[sub.PlayerID]; ok {
			delete(set, sessionID)
			if len(set) == 0 {
				delete(r.byPlayer, sub.PlayerID)
			}
		}
	}
}

// All returns every registered subscriber, joined or not, in no particular
// order.
func (r *Registry) All() []*Subscriber {
	out := make([]*Subscriber, 0, len(r.byID))
	for _, sub := range r.byID {
		out = append(out, sub)
	}
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int { return len(r.byID) }

func (r *Registry) addPlayerIndex(playerID ids.PlayerID, sessionID ids.SessionID) {
	set, ok := r.byPlayer[playerID]
	if !ok {
		set = map[ids.SessionID]struct{}{}
		r.byPlayer[playerID] = set
	}
	set[sessionID] = struct{}{}
}
