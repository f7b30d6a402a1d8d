// Package wsserver is the concrete WebSocket Transport and outer HTTP
// integration (LandServer): fiber + gofiber/contrib/websocket for the wire,
// cors for browser clients, health/admin endpoints for operations.
package wsserver

import (
	"log"
	"net"
	"sync"
	"time"

	"landkeeper/config"
	"landkeeper/ids"
	"landkeeper/land"
	"landkeeper/router"
	"landkeeper/transport"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
)

// LandServer is the outer HTTP/WebSocket integration: it owns the fiber
// app, the concrete Transport, and the Router/Manager the transport
// delegates to.
type LandServer struct {
	app     *fiber.App
	cfg     config.Config
	manager *land.Manager
	router  *router.Router

	mu    sync.Mutex
	conns map[ids.SessionID]*websocket.Conn

	stopSync chan struct{}
}

// syncInterval is how often Run/Listener drive a SyncAll sweep across every
// live land, flushing accumulated diffs to subscribers.
const syncInterval = 100 * time.Millisecond

// NewLandServer wires a fiber app, a wsTransport, and a Router over manager.
// Land types must be registered on the returned server's Router before
// traffic arrives.
func NewLandServer(cfg config.Config, manager *land.Manager) *LandServer {
	s := &LandServer{
		cfg:     cfg,
		manager: manager,
		conns:   map[ids.SessionID]*websocket.Conn{},
	}
	s.router = router.New(manager, s)
	s.app = s.setupApp()
	return s
}

// Router exposes the underlying Router so callers can RegisterLandType
// before Run.
func (s *LandServer) Router() *router.Router { return s.router }

func (s *LandServer) setupApp() *fiber.App {
	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/health", func(c *fiber.Ctx) error { return s.healthCheck(c) })
	app.Get("/lands", func(c *fiber.Ctx) error { return s.listLands(c) })
	app.Get("/lands/:landType/:landInstanceId", func(c *fiber.Ctx) error { return s.getLandStats(c) })
	app.Delete("/lands/:landType/:landInstanceId", func(c *fiber.Ctx) error { return s.removeLand(c) })

	app.Get("/ws", websocket.New(func(c *websocket.Conn) { s.handleWS(c) }))

	return app
}

func (s *LandServer) handleWS(c *websocket.Conn) {
	sessionID := ids.SessionID(uuid.NewString())
	clientID := ids.ClientID(c.Query("clientId", string(sessionID)))
	encoding := c.Query("encoding", s.cfg.DefaultEncoding)

	s.mu.Lock()
	s.conns[sessionID] = c
	s.mu.Unlock()

	s.router.OnConnect(sessionID, clientID, nil, encoding)

	defer func() {
		s.mu.Lock()
		delete(s.conns, sessionID)
		s.mu.Unlock()
		s.router.OnDisconnect(sessionID, clientID)
		c.Close()
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			break
		}
		s.router.OnMessage(data, sessionID)
	}
}

// Start and Stop satisfy transport.Transport; fiber's own Listen/Shutdown
// drive the actual socket lifecycle from Run/Shutdown below.
func (s *LandServer) Start() error { return nil }
func (s *LandServer) Stop() error  { return nil }

// Send implements transport.Transport: writes data to every connection
// matching target.
func (s *LandServer) Send(data []byte, target transport.SendTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch target.Kind {
	case transport.SendBroadcast:
		for _, c := range s.conns {
			_ = c.WriteMessage(websocket.TextMessage, data)
		}
	case transport.SendSession:
		if c, ok := s.conns[target.SessionID]; ok {
			return c.WriteMessage(websocket.TextMessage, data)
		}
	case transport.SendClient:
		// ClientID is not indexed at the transport layer; the adapter
		// resolves client-targeted sends to a session before calling Send.
	}
	return nil
}

// Close implements transport.Transport: forcibly disconnects one session.
func (s *LandServer) Close(sessionID ids.SessionID) error {
	s.mu.Lock()
	c, ok := s.conns[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Close()
}

// Run starts serving on cfg.ListenAddr. Blocks until the listener stops.
func (s *LandServer) Run() error {
	s.startSyncLoop()
	log.Printf("landkeeper: listening on %s", s.cfg.ListenAddr)
	return s.app.Listen(s.cfg.ListenAddr)
}

// Listener serves on a caller-supplied listener, for tests that need a
// random free port rather than cfg.ListenAddr.
func (s *LandServer) Listener(ln net.Listener) error {
	s.startSyncLoop()
	return s.app.Listener(ln)
}

// startSyncLoop starts a goroutine that periodically calls SyncAll on every
// live land, pushing any diffs accumulated since the previous tick.
func (s *LandServer) startSyncLoop() {
	s.stopSync = make(chan struct{})
	ticker := time.NewTicker(syncInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.manager.SyncAll()
			case <-s.stopSync:
				return
			}
		}
	}()
}

// stopSyncLoop stops the periodic sync goroutine and does one final sweep.
func (s *LandServer) stopSyncLoop() {
	if s.stopSync == nil {
		return
	}
	close(s.stopSync)
	s.manager.SyncAll()
}

// Shutdown gracefully stops the sync loop and the fiber app.
func (s *LandServer) Shutdown() error {
	s.stopSyncLoop()
	return s.app.Shutdown()
}

func (s *LandServer) healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "lands": len(s.manager.ListLands())})
}

func (s *LandServer) listLands(c *fiber.Ctx) error {
	landIDs := s.manager.ListLands()
	out := make([]fiber.Map, 0, len(landIDs))
	for _, id := range landIDs {
		out = append(out, fiber.Map{"landType": id.LandType, "landInstanceId": id.LandInstanceID})
	}
	return c.JSON(out)
}

func (s *LandServer) getLandStats(c *fiber.Ctx) error {
	landID := ids.LandID{LandType: c.Params("landType"), LandInstanceID: c.Params("landInstanceId")}
	stats, ok := s.manager.GetLandStats(landID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "land not found"})
	}
	return c.JSON(fiber.Map{
		"landType":       stats.LandID.LandType,
		"landInstanceId": stats.LandID.LandInstanceID,
		"playerCount":    stats.PlayerCount,
		"createdAt":      stats.CreatedAt,
	})
}

func (s *LandServer) removeLand(c *fiber.Ctx) error {
	landID := ids.LandID{LandType: c.Params("landType"), LandInstanceID: c.Params("landInstanceId")}
	if _, ok := s.manager.GetLand(landID); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "land not found"})
	}
	s.manager.RemoveLand(landID, s)
	return c.JSON(fiber.Map{"removed": true})
}
