// Package config provides configuration helpers for go-perception commands.
//
// Values come from the environment, optionally seeded from a .env file in
// the working directory. Command-line flags in cmd/* override them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultRobotPort   = "8000"
	DefaultDaemonPort  = "5050"
	DefaultAPIPort     = "5000"
	DefaultShmPath     = "/dev/shm/perception_frame"
	DefaultDetectModel = "models/face_detection_yunet.onnx"
	DefaultRecogModel  = "models/face_recognition_sface.onnx"
	DefaultFaceDBPath  = "data/faces.json"
)

// Config holds process configuration shared by the binaries.
type Config struct {
	LogLevel string
	LogFile  string

	// Camera daemon.
	DaemonPort string
	DaemonURL  string
	ShmPath    string
	CameraID   int
	CameraFPS  int

	// Robot HTTP API used for head pose telemetry. Empty means a fixed head.
	RobotURL string

	// Perception server.
	APIPort        string
	DetectionModel string
	RecogModel     string
	FaceDBPath     string
	FrameTimeout   time.Duration
}

// LoadDotEnv loads .env if present. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from the environment.
func Load() Config {
	daemonPort := String("DAEMON_PORT", DefaultDaemonPort)
	cfg := Config{
		LogLevel:       String("LOG_LEVEL", "info"),
		LogFile:        os.Getenv("LOG_FILE"),
		DaemonPort:     daemonPort,
		DaemonURL:      String("DAEMON_URL", "http://127.0.0.1:"+daemonPort),
		ShmPath:        String("SHM_PATH", DefaultShmPath),
		CameraID:       Int("CAMERA_ID", 0),
		CameraFPS:      Int("CAMERA_FPS", 15),
		APIPort:        String("API_PORT", DefaultAPIPort),
		DetectionModel: String("DETECTION_MODEL", DefaultDetectModel),
		RecogModel:     String("RECOGNITION_MODEL", DefaultRecogModel),
		FaceDBPath:     String("FACE_DB", DefaultFaceDBPath),
		FrameTimeout:   Duration("FRAME_TIMEOUT", 500*time.Millisecond),
	}
	if ip := RobotIP(""); ip != "" {
		cfg.RobotURL = RobotAPIURL(ip)
	}
	return cfg
}

// RobotIP returns the robot IP from ROBOT_IP env var.
// Falls back to the provided default if not set.
func RobotIP(defaultIP string) string {
	if ip := os.Getenv("ROBOT_IP"); ip != "" {
		return ip
	}
	return defaultIP
}

// RobotAPIURL returns the robot HTTP API URL.
func RobotAPIURL(robotIP string) string {
	return fmt.Sprintf("http://%s:%s", robotIP, DefaultRobotPort)
}

// String returns the env var or def.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as an int, or def when unset or invalid.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Duration returns the env var parsed with time.ParseDuration, or def.
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
