// Package land implements LandManager: lookup/create/remove lands by id,
// each holding its own adapter and keeper behind a uniform interface so the
// manager stays oblivious to any particular land type's state shape.
package land

import (
	"errors"
	"sync"
	"time"

	"landkeeper/ids"
	"landkeeper/transport"
)

// ErrLandCapacityExceeded is returned by GetOrCreateLand when the process is
// already hosting the configured maximum number of lands and landID does not
// name one of them.
var ErrLandCapacityExceeded = errors.New("land: maximum number of lands reached")

// Adapter is the subset of transport.Adapter[S]'s surface the manager and
// router need, with S erased. Every transport.Adapter[S] satisfies this
// automatically since its method set already matches.
type Adapter interface {
	transport.Delegate
	LandID() ids.LandID
	PlayerCount() int
	IsJoined(sessionID ids.SessionID) bool
	SyncNow()
	Sessions() []ids.SessionID
	// Register enrolls a session without running any connect-time legacy
	// join, for a caller (the Router) that already holds an explicit join
	// frame and is about to forward it via OnMessage.
	Register(sessionID ids.SessionID, clientID ids.ClientID, authInfo any, encoding string)
}

// Factory builds the adapter for a newly created land instance. Definitions
// are generic per land type, so the registry that resolves landType to a
// Factory lives above this package (see router.Router.RegisterLandType).
type Factory func(landID ids.LandID) Adapter

// Container is one land's lifetime record: its id, its adapter (which in
// turn owns the keeper), and when it was created.
type Container struct {
	LandID    ids.LandID
	Adapter   Adapter
	CreatedAt time.Time
}

// Stats is the externally reportable summary of one land.
type Stats struct {
	LandID      ids.LandID
	PlayerCount int
	CreatedAt   time.Time
}

// Manager owns the LandID -> Container map for the whole process, serialized
// behind its own lock (held only long enough to mutate the map itself; land
// work proceeds under the land's own adapter lock, not this one).
type Manager struct {
	mu       sync.Mutex
	lands    map[ids.LandID]*Container
	maxLands int
}

func NewManager() *Manager {
	return NewManagerWithLimit(0)
}

// NewManagerWithLimit caps the number of concurrently live lands at
// maxLands. A maxLands of 0 means unlimited, matching NewManager.
func NewManagerWithLimit(maxLands int) *Manager {
	return &Manager{lands: map[ids.LandID]*Container{}, maxLands: maxLands}
}

// GetOrCreateLand returns the existing container for landID, or builds one
// via factory if absent. Idempotent: concurrent calls for the same landID
// observe the same container identity. Returns ErrLandCapacityExceeded if
// landID is new and the manager is already at its configured maxLands.
func (m *Manager) GetOrCreateLand(landID ids.LandID, factory Factory) (*Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.lands[landID]; ok {
		return c, nil
	}
	if m.maxLands > 0 && len(m.lands) >= m.maxLands {
		return nil, ErrLandCapacityExceeded
	}
	c := &Container{LandID: landID, Adapter: factory(landID), CreatedAt: time.Now()}
	m.lands[landID] = c
	return c, nil
}

// GetLand returns landID's container, if it exists.
func (m *Manager) GetLand(landID ids.LandID) (*Container, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.lands[landID]
	return c, ok
}

// ListLands returns every currently live land id, in no particular order.
func (m *Manager) ListLands() []ids.LandID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ids.LandID, 0, len(m.lands))
	for id := range m.lands {
		out = append(out, id)
	}
	return out
}

// GetLandStats reports landID's current stats, if it exists.
func (m *Manager) GetLandStats(landID ids.LandID) (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.lands[landID]
	if !ok {
		return Stats{}, false
	}
	return Stats{LandID: landID, PlayerCount: c.Adapter.PlayerCount(), CreatedAt: c.CreatedAt}, true
}

// SyncAll calls SyncNow on every live land's adapter, flushing any diffs
// accumulated since the last cycle. Intended to be driven by a periodic
// ticker in the outer server, mirroring a periodic-sweep goroutine rather
// than syncing inline with every mutation.
func (m *Manager) SyncAll() {
	m.mu.Lock()
	containers := make([]*Container, 0, len(m.lands))
	for _, c := range m.lands {
		containers = append(containers, c)
	}
	m.mu.Unlock()

	for _, c := range containers {
		c.Adapter.SyncNow()
	}
}

// RemoveLand tears down landID: drops the container from the map, then
// force-disconnects via tr every session registered with its adapter
// (joined or mid-handshake). Force-disconnect
// (rather than draining) is this implementation's resolution of an open
// question in the land lifecycle: safety over graceful drain.
func (m *Manager) RemoveLand(landID ids.LandID, tr transport.Transport) {
	m.mu.Lock()
	c, ok := m.lands[landID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.lands, landID)
	m.mu.Unlock()

	for _, sessionID := range c.Adapter.Sessions() {
		_ = tr.Close(sessionID)
	}
}
