package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrUnknownSetting is returned when a partial update names a key that is
// not part of the schema.
var ErrUnknownSetting = errors.New("settings: unknown key")

// ValidationError lists every rejected field of an update.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "settings: invalid values: " + strings.Join(e.Fields, "; ")
}

// Listener is notified after a successful change.
type Listener func(prev, next Settings)

// Store holds the current settings and applies validated updates.
type Store struct {
	mu        sync.RWMutex
	current   Settings
	validate  *validator.Validate
	listeners []Listener
}

// NewStore creates a store seeded with initial, which must be valid.
func NewStore(initial Settings) (*Store, error) {
	s := &Store{validate: validator.New()}
	if err := s.check(initial); err != nil {
		return nil, err
	}
	s.current = initial
	return s, nil
}

// NewDefaultStore creates a store seeded with Default().
func NewDefaultStore() *Store {
	s, err := NewStore(Default())
	if err != nil {
		panic(err)
	}
	return s
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnChange registers a listener. Listeners run on the updating goroutine,
// after the lock is released.
func (s *Store) OnChange(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Replace swaps in a whole new value. Invalid values leave the store
// untouched.
func (s *Store) Replace(next Settings) error {
	if err := s.check(next); err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.current
	s.current = next
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if prev != next {
		for _, fn := range listeners {
			fn(prev, next)
		}
	}
	return nil
}

// Update merges a partial set of fields keyed by their JSON names. The
// merge is all-or-nothing: any unknown key, wrongly typed value, or value
// out of range rejects the whole update.
func (s *Store) Update(params map[string]any) (Settings, error) {
	next := s.Get()

	var bad []string
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params[key]
		var ok bool
		switch key {
		case "max_angle_distance":
			next.MaxAngleDistance, ok = toFloat(value)
		case "track_timeout_ms":
			next.TrackTimeoutMs, ok = toInt(value)
		case "recognition_cooldown_ms":
			next.RecognitionCooldownMs, ok = toInt(value)
		case "recognition_threshold":
			next.RecognitionThreshold, ok = toFloat(value)
		case "gaze_center_tolerance":
			next.GazeCenterTolerance, ok = toFloat(value)
		case "confirm_count":
			next.ConfirmCount, ok = toInt(value)
		case "lost_buffer_ms":
			next.LostBufferMs, ok = toInt(value)
		case "recovery_distance_m":
			next.RecoveryDistanceM, ok = toFloat(value)
		case "update_interval_ms":
			next.UpdateIntervalMs, ok = toInt(value)
		case "camera_resolution":
			next.CameraResolution, ok = toInt(value)
		case "depth_weight":
			next.DepthWeight, ok = toFloat(value)
		default:
			return s.Get(), fmt.Errorf("%w: %q", ErrUnknownSetting, key)
		}
		if !ok {
			bad = append(bad, fmt.Sprintf("%s: wrong type %T", key, value))
		}
	}
	if len(bad) > 0 {
		return s.Get(), &ValidationError{Fields: bad}
	}

	if err := s.Replace(next); err != nil {
		return s.Get(), err
	}
	return next, nil
}

// UpdateJSON decodes a JSON object and applies it with Update.
func (s *Store) UpdateJSON(data []byte) (Settings, error) {
	var params map[string]any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&params); err != nil {
		return s.Get(), fmt.Errorf("settings: decode: %w", err)
	}
	return s.Update(params)
}

// Validate checks a settings value against the schema.
func Validate(v Settings) error {
	return (&Store{validate: validator.New()}).check(v)
}

func (s *Store) check(v Settings) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s: failed %s=%s", jsonName(fe.StructField()), fe.Tag(), fe.Param()))
	}
	return &ValidationError{Fields: fields}
}

var jsonNames = map[string]string{
	"MaxAngleDistance":      "max_angle_distance",
	"TrackTimeoutMs":        "track_timeout_ms",
	"RecognitionCooldownMs": "recognition_cooldown_ms",
	"RecognitionThreshold":  "recognition_threshold",
	"GazeCenterTolerance":   "gaze_center_tolerance",
	"ConfirmCount":          "confirm_count",
	"LostBufferMs":          "lost_buffer_ms",
	"RecoveryDistanceM":     "recovery_distance_m",
	"UpdateIntervalMs":      "update_interval_ms",
	"CameraResolution":      "camera_resolution",
	"DepthWeight":           "depth_weight",
}

func jsonName(field string) string {
	if n, ok := jsonNames[field]; ok {
		return n
	}
	return field
}

// Helper functions for type conversion

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err == nil {
			return f, true
		}
	}
	return 0, false
}
