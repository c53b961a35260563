package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-perception/pkg/facedb"
	"github.com/teslashibe/go-perception/pkg/perception"
	"github.com/teslashibe/go-perception/pkg/protocol"
	"github.com/teslashibe/go-perception/pkg/recognition"
	"github.com/teslashibe/go-perception/pkg/settings"
)

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// handlePeople returns the cached result of the last perception cycle
func (s *Server) handlePeople(c *fiber.Ctx) error {
	return c.JSON(s.deps.Perception.State())
}

// handleGetSettings returns the current settings
func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"settings":          s.deps.Settings.Get(),
		"websocket_clients": s.hub.ClientCount(),
	})
}

// handleUpdateSettings applies a partial settings update
func (s *Server) handleUpdateSettings(c *fiber.Ctx) error {
	next, err := s.applySettings(c.Body())
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{"status": "updated", "settings": next})
}

// applySettings updates the store and pushes the result to every client.
func (s *Server) applySettings(body []byte) (settings.Settings, error) {
	next, err := s.deps.Settings.UpdateJSON(body)
	if err != nil {
		return next, err
	}
	s.logger.Info("settings updated", "settings", next)
	if msg, err := protocol.NewSettingsMessage(next); err == nil {
		s.broadcast(msg)
	}
	return next, nil
}

// handleListFaces returns the known identities
func (s *Server) handleListFaces(c *fiber.Ctx) error {
	if s.deps.Faces == nil {
		return c.JSON(fiber.Map{"faces": []protocol.FaceInfo{}})
	}
	return c.JSON(fiber.Map{"faces": protocol.FaceList(s.deps.Faces.List())})
}

// handleRegisterFace stores the largest face of the current frame
func (s *Server) handleRegisterFace(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Name is required")
	}
	if _, err := s.registerFace(name); err != nil {
		return errorJSON(c, registerStatus(err), faceError(err))
	}
	return c.JSON(fiber.Map{"status": "registered", "name": name})
}

// handleDeleteFace removes every encoding stored under a name
func (s *Server) handleDeleteFace(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Name is required")
	}
	removed, err := s.deleteFace(name)
	if err != nil {
		status := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, facedb.ErrNotFound):
			status = fiber.StatusNotFound
		case errors.Is(err, ErrUnavailable):
			status = fiber.StatusServiceUnavailable
		}
		return errorJSON(c, status, faceError(err))
	}
	return c.JSON(fiber.Map{"status": "deleted", "name": name, "removed_count": removed})
}

// handleStatus reports service health
func (s *Server) handleStatus(c *fiber.Ctx) error {
	state := s.deps.Perception.State()
	status := fiber.Map{
		"status":            "ok",
		"uptime_s":          int64(s.uptime().Seconds()),
		"people":            len(state.People),
		"last_update":       state.Timestamp,
		"websocket_clients": s.hub.ClientCount(),
		"hub_dropped":       s.hub.Dropped(),
		"hub_skipped":       s.hub.Skipped(),
	}
	if s.deps.Faces != nil {
		status["known_faces"] = len(s.deps.Faces.List())
	}
	if s.deps.Status != nil {
		for k, v := range s.deps.Status() {
			status[k] = v
		}
	}
	return c.JSON(status)
}

func (s *Server) registerFace(name string) (int, error) {
	if s.deps.Registrar == nil {
		return 0, ErrUnavailable
	}
	n, err := s.deps.Perception.RegisterFace(s.deps.Registrar, name)
	if err != nil {
		s.logger.Warn("face registration failed", "name", name, "error", err)
		return 0, err
	}
	s.broadcastFaces()
	return n, nil
}

func (s *Server) deleteFace(name string) (int, error) {
	if s.deps.Faces == nil {
		return 0, ErrUnavailable
	}
	removed, err := s.deps.Faces.Remove(name)
	if err != nil {
		return 0, err
	}
	s.logger.Info("face deleted", "name", name, "removed", removed)
	s.broadcastFaces()
	return removed, nil
}

func (s *Server) broadcastFaces() {
	if s.deps.Faces == nil {
		return
	}
	if msg, err := protocol.NewFacesMessage(s.deps.Faces.List()); err == nil {
		s.broadcast(msg)
	}
}

func registerStatus(err error) int {
	switch {
	case errors.Is(err, perception.ErrNoFace), errors.Is(err, perception.ErrNoFrame),
		errors.Is(err, recognition.ErrNoEmbedding), errors.Is(err, recognition.ErrReservedName),
		errors.Is(err, facedb.ErrEmptyName):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// faceError maps errors to the messages clients display.
func faceError(err error) string {
	switch {
	case errors.Is(err, perception.ErrNoFace), errors.Is(err, perception.ErrNoFrame),
		errors.Is(err, recognition.ErrNoEmbedding):
		return "No face detected"
	case errors.Is(err, facedb.ErrNotFound):
		return "Face not found"
	case errors.Is(err, ErrUnavailable):
		return "Not available"
	}
	return err.Error()
}
