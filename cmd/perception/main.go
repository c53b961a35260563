// perception runs the face tracking service: it consumes frames from the
// camera daemon, tracks and identifies faces and serves the results over
// HTTP and websocket.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-perception/internal/config"
	"github.com/teslashibe/go-perception/internal/log"
)

func main() {
	cfg, noRecognition := parseFlags()

	log.InitWithOptions(log.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	logger := log.Component("perception")

	app, err := newApp(cfg, !noRecognition)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags over the environment configuration.
func parseFlags() (config.Config, bool) {
	_ = config.LoadDotEnv()
	cfg := config.Load()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	port := flag.String("port", cfg.APIPort, "API port")
	daemonURL := flag.String("daemon-url", cfg.DaemonURL, "Camera daemon base URL")
	shm := flag.String("shm", cfg.ShmPath, "Shared memory frame file (empty = HTTP only)")
	detModel := flag.String("detection-model", cfg.DetectionModel, "YuNet ONNX model")
	recModel := flag.String("recognition-model", cfg.RecogModel, "SFace ONNX model")
	faces := flag.String("faces", cfg.FaceDBPath, "Face database file")
	noRecognition := flag.Bool("no-recognition", false, "Track faces without identifying them")
	flag.Parse()

	cfg.APIPort, cfg.DaemonURL, cfg.ShmPath = *port, *daemonURL, *shm
	cfg.DetectionModel, cfg.RecogModel, cfg.FaceDBPath = *detModel, *recModel, *faces
	if *debug {
		cfg.LogLevel = "debug"
	}
	return cfg, *noRecognition
}
