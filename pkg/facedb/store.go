package facedb

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store defines the interface for face database persistence backends.
type Store interface {
	// Save persists the given data.
	Save(data []byte) error

	// Load retrieves the stored data. A missing database loads as nil.
	Load() ([]byte, error)

	// Close releases any resources held by the store.
	Close() error
}

// JSONStore implements Store for file-based JSON persistence.
type JSONStore struct {
	FilePath string
}

// NewJSONStore creates a new JSON file store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{FilePath: path}
}

// Save writes data to a temporary file and renames it over the database
// so readers never see a partial file.
func (s *JSONStore) Save(data []byte) error {
	if s.FilePath == "" {
		return nil
	}

	dir := filepath.Dir(s.FilePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.FilePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.FilePath); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}

// Load reads data from the JSON file.
func (s *JSONStore) Load() ([]byte, error) {
	if s.FilePath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(s.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // File doesn't exist yet, that's OK
		}
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// Close is a no-op for JSON files.
func (s *JSONStore) Close() error {
	return nil
}

// MemoryStore keeps the database in memory only.
type MemoryStore struct {
	data []byte
}

// Save keeps a copy of data.
func (m *MemoryStore) Save(data []byte) error {
	m.data = append(m.data[:0], data...)
	return nil
}

// Load returns the last saved data.
func (m *MemoryStore) Load() ([]byte, error) { return m.data, nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// Ensure both stores implement Store
var (
	_ Store = (*JSONStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
