package camera

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-perception/pkg/framechannel"
)

// Daemon serves the capture side over HTTP: the frame fallback, status
// and resolution control.
type Daemon struct {
	id       string
	started  time.Time
	manager  *Manager
	latest   *framechannel.Latest
	producer *Producer
	shmPath  string
	logger   *slog.Logger
	app      *fiber.App
}

// NewDaemon builds the daemon API. producer may be nil.
func NewDaemon(mgr *Manager, latest *framechannel.Latest, producer *Producer, shmPath string, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{
		id:       uuid.NewString(),
		started:  time.Now(),
		manager:  mgr,
		latest:   latest,
		producer: producer,
		shmPath:  shmPath,
		logger:   logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               "camera-daemon",
		DisableStartupMessage: true,
	})
	app.Get(framechannel.FramePath, framechannel.Handler(latest))
	app.Get("/status", d.handleStatus)
	app.Get("/set_resolution", d.handleSetResolution)
	app.Post("/set_resolution", d.handleSetResolution)
	app.Get("/config", d.handleGetConfig)
	app.Post("/config", d.handleUpdateConfig)
	d.app = app
	return d
}

// App returns the fiber app, for tests and embedding.
func (d *Daemon) App() *fiber.App { return d.app }

// Listen serves on addr until Shutdown.
func (d *Daemon) Listen(addr string) error {
	d.logger.Info("camera daemon listening", "addr", addr, "instance", d.id)
	return d.app.Listen(addr)
}

// Shutdown stops the server.
func (d *Daemon) Shutdown() error {
	return d.app.Shutdown()
}

func (d *Daemon) handleStatus(c *fiber.Ctx) error {
	cfg := d.manager.GetConfig()
	w, h := cfg.Resolution.Size()
	status := fiber.Map{
		"instance":        d.id,
		"uptime_s":        int64(time.Since(d.started).Seconds()),
		"resolution":      int(cfg.Resolution),
		"resolution_name": cfg.Resolution.String(),
		"width":           w,
		"height":          h,
		"framerate":       cfg.Framerate,
		"offsets": fiber.Map{
			"dx": cfg.OffsetX,
			"dy": cfg.OffsetY,
			"dz": cfg.OffsetZ,
		},
		"seq":      d.latest.Seq(),
		"shm_path": d.shmPath,
	}
	if d.producer != nil {
		status["producer"] = d.producer.Stats()
	}
	return c.JSON(status)
}

func (d *Daemon) handleSetResolution(c *fiber.Ctx) error {
	r, err := ParseResolution(c.Query("res"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := d.manager.SetResolution(r); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	d.logger.Info("resolution changed", "resolution", r.String())
	return c.JSON(fiber.Map{
		"status":          "ok",
		"resolution":      int(r),
		"resolution_name": r.String(),
	})
}

func (d *Daemon) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(d.manager.Status())
}

func (d *Daemon) handleUpdateConfig(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if err := d.manager.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(d.manager.Status())
}
