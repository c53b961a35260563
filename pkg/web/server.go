// Package web serves the perception API: people, settings, faces, status
// and the live perception websocket.
package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-perception/pkg/camera"
	"github.com/teslashibe/go-perception/pkg/hub"
	"github.com/teslashibe/go-perception/pkg/perception"
	"github.com/teslashibe/go-perception/pkg/protocol"
	"github.com/teslashibe/go-perception/pkg/settings"
)

// Perception is the part of the perception loop the API reads.
type Perception interface {
	State() perception.State
	RegisterFace(r perception.Registrar, name string) (int, error)
}

// FaceStore lists and removes known faces.
type FaceStore interface {
	List() map[string]int
	Remove(name string) (int, error)
}

// ResolutionSetter forwards camera resolution changes to the daemon.
type ResolutionSetter interface {
	SetResolution(ctx context.Context, r camera.Resolution) error
}

// Deps bundles the collaborators of the server. Registrar, Faces and
// Daemon may be nil; the matching endpoints then report unavailable.
type Deps struct {
	Perception Perception
	Settings   *settings.Store
	Faces      FaceStore
	Registrar  perception.Registrar
	Daemon     ResolutionSetter

	// Status adds service-specific fields to GET /api/status.
	Status func() fiber.Map
}

// ErrUnavailable is reported when a face operation has no backend.
var ErrUnavailable = errors.New("not available")

// Server is the perception API server
type Server struct {
	app    *fiber.App
	deps   Deps
	hub    *hub.Hub
	logger *slog.Logger
	start  time.Time

	// forwardTimeout bounds a resolution change sent to the daemon.
	forwardTimeout time.Duration
}

// NewServer creates the API server.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:           deps,
		hub:            hub.New("perception", logger),
		logger:         logger,
		start:          time.Now(),
		forwardTimeout: 5 * time.Second,
	}
	s.hub.OnConnect(s.handleConnect)
	s.hub.OnMessage(s.handleMessage)
	if deps.Daemon != nil {
		deps.Settings.OnChange(s.forwardResolution)
	}

	app := fiber.New(fiber.Config{
		AppName:               "perception",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/people", s.handlePeople)
	api.Get("/settings", s.handleGetSettings)
	api.Post("/settings", s.handleUpdateSettings)
	api.Get("/faces", s.handleListFaces)
	api.Post("/faces", s.handleRegisterFace)
	api.Delete("/faces", s.handleDeleteFace)
	api.Get("/status", s.handleStatus)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/perception", websocket.New(s.handlePerceptionWS))

	s.app = app
	return s
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App { return s.app }

// Hub returns the perception websocket hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("perception api listening", "addr", addr)
		errCh <- s.app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		return s.app.ShutdownWithTimeout(5 * time.Second)
	case err := <-errCh:
		return err
	}
}

// BroadcastPeople implements perception.Broadcaster.
func (s *Server) BroadcastPeople(state perception.State) {
	if s.hub.ClientCount() == 0 {
		return
	}
	msg, err := protocol.NewPeopleMessage(state)
	if err != nil {
		s.logger.Error("encode people", "error", err)
		return
	}
	s.broadcast(msg)
}

func (s *Server) broadcast(msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		s.logger.Error("encode message", "type", msg.Type, "error", err)
		return
	}
	if msg.Type == protocol.TypePeople {
		s.hub.Broadcast(hub.NewStateMessage(string(msg.Type), data))
		return
	}
	s.hub.Broadcast(hub.NewMessage(string(msg.Type), data))
}

// forwardResolution pushes camera_resolution changes to the daemon.
func (s *Server) forwardResolution(prev, next settings.Settings) {
	if prev.CameraResolution == next.CameraResolution {
		return
	}
	r := camera.Resolution(next.CameraResolution)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.forwardTimeout)
		defer cancel()
		if err := s.deps.Daemon.SetResolution(ctx, r); err != nil {
			s.logger.Warn("failed to forward resolution to camera daemon", "resolution", r.String(), "error", err)
			return
		}
		s.logger.Info("camera resolution forwarded", "resolution", r.String())
	}()
}
