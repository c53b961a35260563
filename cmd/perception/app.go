package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-perception/internal/config"
	"github.com/teslashibe/go-perception/internal/log"
	"github.com/teslashibe/go-perception/pkg/camera"
	"github.com/teslashibe/go-perception/pkg/facedb"
	"github.com/teslashibe/go-perception/pkg/framechannel"
	"github.com/teslashibe/go-perception/pkg/perception"
	"github.com/teslashibe/go-perception/pkg/recognition"
	"github.com/teslashibe/go-perception/pkg/settings"
	"github.com/teslashibe/go-perception/pkg/tracking"
	"github.com/teslashibe/go-perception/pkg/tracking/detection"
	"github.com/teslashibe/go-perception/pkg/web"
)

// recognitionTimeout bounds one identification.
const recognitionTimeout = 3 * time.Second

type app struct {
	cfg    config.Config
	logger *slog.Logger

	source    *framechannel.FallbackSource
	detector  detection.Detector
	tracker   *tracking.Tracker
	db        *facedb.DB
	embedder  recognition.Recognizer
	scheduler *recognition.Scheduler
	loop      *perception.Loop
	server    *web.Server
}

func newApp(cfg config.Config, withRecognition bool) (*app, error) {
	a := &app{cfg: cfg, logger: log.Component("perception")}
	store := settings.NewDefaultStore()

	dcfg := detection.DefaultConfig()
	dcfg.ModelPath = cfg.DetectionModel
	det, err := detection.NewYuNet(dcfg, log.Component("detector"))
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	a.detector = det

	a.tracker = tracking.New(tracking.DefaultConfig(), store, tracking.WithLogger(log.Component("tracker")))

	var shared *framechannel.Reader
	if cfg.ShmPath != "" {
		shared = framechannel.NewReader(cfg.ShmPath)
	}
	a.source = framechannel.NewFallbackSource(shared,
		framechannel.NewHTTPReader(cfg.DaemonURL, cfg.FrameTimeout), log.Component("frames"))

	a.db, err = facedb.OpenFile(cfg.FaceDBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("face database: %w", err)
	}

	var (
		submitter perception.Submitter
		registrar perception.Registrar
	)
	if withRecognition {
		sface, err := recognition.NewSFace(cfg.RecogModel, log.Component("recognizer"))
		if err != nil {
			a.logger.Warn("recognition disabled", "error", err)
		} else {
			a.embedder = sface
			matcher := recognition.NewMatcher(sface, a.db, store, log.Component("matcher"))
			a.scheduler = recognition.NewScheduler(matcher, a.tracker, recognitionTimeout, log.Component("scheduler"))
			submitter, registrar = a.scheduler, matcher
		}
	}

	a.loop = perception.New(a.source, a.detector, a.tracker, store, submitter, log.Component("loop"))
	a.server = web.NewServer(web.Deps{
		Perception: a.loop,
		Settings:   store,
		Faces:      a.db,
		Registrar:  registrar,
		Daemon:     camera.NewDaemonClient(cfg.DaemonURL),
		Status:     a.status,
	}, log.Component("api"))
	a.loop.SetBroadcaster(a.server)

	a.logger.Info("perception configured",
		"daemon", cfg.DaemonURL,
		"shm", cfg.ShmPath,
		"recognition", a.scheduler != nil,
		"known_faces", a.db.Len())
	return a, nil
}

// Run starts every service and blocks until ctx is cancelled or one of
// them fails.
func (a *app) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.loop.Run(ctx) })
	if a.scheduler != nil {
		g.Go(func() error { return a.scheduler.Run(ctx) })
	}
	g.Go(func() error { return a.server.Run(ctx, ":"+a.cfg.APIPort) })
	return g.Wait()
}

func (a *app) status() fiber.Map {
	active, lost, pending := a.tracker.Counts()
	m := fiber.Map{
		"frames": a.source.Stats(),
		"loop":   a.loop.Stats(),
		"tracks": fiber.Map{"active": active, "lost": lost, "pending": pending},
	}
	if a.scheduler != nil {
		m["recognition"] = a.scheduler.Stats()
	}
	return m
}

// Close releases models, the frame channel and the database.
func (a *app) Close() {
	if a.source != nil {
		a.source.Close()
	}
	if a.embedder != nil {
		a.embedder.Close()
	}
	if a.detector != nil {
		a.detector.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
