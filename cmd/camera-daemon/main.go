// camera-daemon captures the head camera and publishes synchronized
// frames (image plus head pose) over shared memory and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-perception/internal/config"
	"github.com/teslashibe/go-perception/internal/log"
	"github.com/teslashibe/go-perception/pkg/camera"
	"github.com/teslashibe/go-perception/pkg/framechannel"
	"github.com/teslashibe/go-perception/pkg/robot"
)

type options struct {
	env        config.Config
	resolution camera.Resolution
	staticHead bool
}

func main() {
	opts := parseFlags()

	log.InitWithOptions(log.Options{Level: opts.env.LogLevel, File: opts.env.LogFile})
	logger := log.Component("camera-daemon")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		logger.Error("camera daemon failed", "error", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags over the environment configuration.
func parseFlags() options {
	_ = config.LoadDotEnv()
	env := config.Load()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	device := flag.Int("device", env.CameraID, "Camera device index")
	fps := flag.Int("fps", env.CameraFPS, "Capture framerate")
	res := flag.Int("res", int(camera.QVGA), "Resolution preset: 0=QQVGA, 1=QVGA, 2=VGA")
	port := flag.String("port", env.DaemonPort, "HTTP port")
	shm := flag.String("shm", env.ShmPath, "Shared memory file (empty disables)")
	robotURL := flag.String("robot-url", env.RobotURL, "Robot HTTP API for head pose (empty = fixed head)")
	flag.Parse()

	env.CameraID, env.CameraFPS, env.DaemonPort, env.ShmPath, env.RobotURL = *device, *fps, *port, *shm, *robotURL
	if *debug {
		env.LogLevel = "debug"
	}
	return options{env: env, resolution: camera.Resolution(*res), staticHead: *robotURL == ""}
}

func run(ctx context.Context, opts options) error {
	logger := log.Component("camera-daemon")

	cfg := camera.DefaultConfig()
	cfg.DeviceID = opts.env.CameraID
	cfg.Framerate = opts.env.CameraFPS
	cfg.Resolution = opts.resolution
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid camera config: %v", errs)
	}
	mgr := camera.NewManager(cfg)

	src, err := camera.OpenGoCV(cfg.DeviceID, cfg.Resolution)
	if err != nil {
		return err
	}
	defer src.Close()

	mgr.OnConfigChange = func(prev, next camera.Config) error {
		if prev.DeviceID != next.DeviceID {
			return errors.New("device_id cannot change while running")
		}
		if prev.Resolution != next.Resolution {
			return src.SetResolution(next.Resolution)
		}
		return nil
	}

	var sensors camera.Sensors
	if opts.staticHead {
		logger.Info("no robot API configured, assuming a fixed head")
		sensors = camera.NewStaticSensors(0, 0)
	} else {
		logger.Info("reading head pose from robot", "url", opts.env.RobotURL)
		sensors = robot.NewHTTPSensors(opts.env.RobotURL)
	}

	latest := framechannel.NewLatest()
	pubs := framechannel.Multi{latest}
	if opts.env.ShmPath != "" {
		w, err := framechannel.NewWriter(opts.env.ShmPath, 0)
		if err != nil {
			logger.Warn("shared memory unavailable, serving HTTP only", "path", opts.env.ShmPath, "error", err)
		} else {
			defer w.Close()
			pubs = append(framechannel.Multi{w}, pubs...)
			logger.Info("shared memory channel ready", "path", w.Path())
		}
	}

	producer := camera.NewProducer(src, sensors, mgr, pubs, logger)
	daemon := camera.NewDaemon(mgr, latest, producer, opts.env.ShmPath, logger)

	errCh := make(chan error, 2)
	go func() { errCh <- producer.Run(ctx) }()
	go func() { errCh <- daemon.Listen(":" + opts.env.DaemonPort) }()

	logger.Info("camera daemon started",
		"device", cfg.DeviceID,
		"resolution", cfg.Resolution.String(),
		"fps", cfg.Framerate)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	return daemon.Shutdown()
}
