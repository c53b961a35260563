package camera

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Manager holds the current capture configuration and handles updates.
type Manager struct {
	config Config
	mu     sync.RWMutex

	// Callback when config changes (for applying to the source)
	OnConfigChange func(prev, next Config) error
}

// NewManager creates a manager with the given config.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates and applies cfg. If the callback fails the previous
// config is restored.
func (m *Manager) SetConfig(cfg Config) error {
	if errors := cfg.Validate(); len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	m.mu.Lock()
	prev := m.config
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil && prev != cfg {
		if err := callback(prev, cfg); err != nil {
			m.mu.Lock()
			m.config = prev
			m.mu.Unlock()
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}

	return nil
}

// SetResolution changes only the resolution preset.
func (m *Manager) SetResolution(r Resolution) error {
	cfg := m.GetConfig()
	cfg.Resolution = r
	return m.SetConfig(cfg)
}

// UpdateConfig updates specific fields of the configuration.
// Accepts a map of field names to values.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	cfg := m.GetConfig()

	for key, value := range params {
		switch key {
		case "device_id":
			v, ok := toInt(value)
			if !ok {
				return fmt.Errorf("device_id: expected integer, got %T", value)
			}
			cfg.DeviceID = v
		case "resolution":
			v, ok := toInt(value)
			if !ok {
				return fmt.Errorf("resolution: expected integer, got %T", value)
			}
			cfg.Resolution = Resolution(v)
		case "framerate":
			v, ok := toInt(value)
			if !ok {
				return fmt.Errorf("framerate: expected integer, got %T", value)
			}
			cfg.Framerate = v
		case "offset_x", "offset_y", "offset_z":
			v, ok := toFloat(value)
			if !ok {
				return fmt.Errorf("%s: expected number, got %T", key, value)
			}
			switch key {
			case "offset_x":
				cfg.OffsetX = v
			case "offset_y":
				cfg.OffsetY = v
			default:
				cfg.OffsetZ = v
			}
		default:
			return fmt.Errorf("unknown camera setting %q", key)
		}
	}

	return m.SetConfig(cfg)
}

// Status returns the config as a map for JSON responses, with the
// resolution name and frame size added.
func (m *Manager) Status() map[string]interface{} {
	cfg := m.GetConfig()

	data, _ := json.Marshal(cfg)
	var result map[string]interface{}
	_ = json.Unmarshal(data, &result)

	w, h := cfg.Resolution.Size()
	result["resolution_name"] = cfg.Resolution.String()
	result["width"] = w
	result["height"] = h
	return result
}

// Helper functions for type conversion

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val != float64(int(val)) {
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

func toFloat(v interface{}) (float64, bool) {
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
