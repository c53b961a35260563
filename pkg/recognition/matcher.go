package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-perception/pkg/camera"
	"github.com/teslashibe/go-perception/pkg/facedb"
	"github.com/teslashibe/go-perception/pkg/settings"
	"github.com/teslashibe/go-perception/pkg/tracking"
	"github.com/teslashibe/go-perception/pkg/tracking/detection"
)

// DefaultCacheTTL bounds how long decoded encodings are reused.
const DefaultCacheTTL = 5 * time.Second

// ErrReservedName is returned when registering the Unknown placeholder.
var ErrReservedName = errors.New("recognition: reserved name")

// SettingsSource supplies the recognition threshold.
type SettingsSource interface {
	Get() settings.Settings
}

// Matcher identifies faces against the face database.
type Matcher struct {
	rec      Recognizer
	db       *facedb.DB
	settings SettingsSource
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu        sync.Mutex
	names     []string
	encodings [][]float64
	loadedAt  time.Time
	dbVersion uint64
	haveCache bool
}

// NewMatcher creates a matcher.
func NewMatcher(rec Recognizer, db *facedb.DB, src SettingsSource, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		rec:      rec,
		db:       db,
		settings: src,
		ttl:      DefaultCacheTTL,
		now:      time.Now,
		logger:   logger,
	}
}

// Identify embeds the task's face and matches it.
func (m *Matcher) Identify(ctx context.Context, task Task) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Unknown, err
	}
	enc, err := m.rec.Embed(task.Image, task.Face)
	if err != nil {
		return Unknown, fmt.Errorf("embed track %d: %w", task.TrackID, err)
	}
	if err := ctx.Err(); err != nil {
		return Unknown, err
	}
	return m.Match(enc), nil
}

// Match returns the closest known name when its cosine distance is under
// the threshold. Confidence is 1 - distance, floored at zero.
func (m *Matcher) Match(enc []float32) Result {
	names, encs := m.known()
	if len(names) == 0 || len(enc) == 0 {
		return Unknown
	}
	threshold := m.settings.Get().RecognitionThreshold

	q := toFloat64(enc)
	best, bestName := math.Inf(1), ""
	for i, e := range encs {
		if len(e) != len(q) {
			continue
		}
		if d := cosineDistance64(q, e); d < best {
			best, bestName = d, names[i]
		}
	}
	if bestName == "" || best >= threshold {
		return Unknown
	}
	return Result{Name: bestName, Confidence: math.Max(0, 1-best)}
}

// Register embeds face and stores it under name. It returns the number of
// encodings now held for the name.
func (m *Matcher) Register(img camera.Image, face detection.Detection, name string) (int, error) {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, tracking.UnknownName) {
		return 0, ErrReservedName
	}
	enc, err := m.rec.Embed(img, face)
	if err != nil {
		return 0, err
	}
	n, err := m.db.Add(name, enc)
	if err != nil {
		return 0, err
	}
	m.logger.Info("face registered", "name", name, "count", n)
	return n, nil
}

// Invalidate drops the cached encodings.
func (m *Matcher) Invalidate() {
	m.mu.Lock()
	m.haveCache = false
	m.mu.Unlock()
}

func (m *Matcher) known() ([]string, [][]float64) {
	now := m.now()
	version := m.db.Version()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.haveCache && m.dbVersion == version && now.Sub(m.loadedAt) < m.ttl {
		return m.names, m.encodings
	}

	names, raw := m.db.All()
	encs := make([][]float64, len(raw))
	for i, e := range raw {
		encs[i] = toFloat64(e)
	}
	m.names, m.encodings = names, encs
	m.loadedAt, m.dbVersion, m.haveCache = now, version, true
	return names, encs
}
