// Package facedb stores the face embeddings of known people.
//
// A name may have several embeddings (one per registration); recognition
// compares against all of them.
package facedb

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrEmptyName     = errors.New("facedb: name is empty")
	ErrEmptyEncoding = errors.New("facedb: encoding is empty")
	ErrNotFound      = errors.New("facedb: name not registered")
)

// Entry is one registered embedding.
type Entry struct {
	Name     string    `json:"name"`
	Encoding []float32 `json:"encoding"`
	AddedAt  time.Time `json:"added_at"`
}

type document struct {
	Faces []Entry `json:"faces"`
}

// DB is the face database. All methods are safe for concurrent use.
type DB struct {
	mu      sync.RWMutex
	entries []Entry
	version uint64
	store   Store
	now     func() time.Time
}

// Open loads the database from store.
func Open(store Store) (*DB, error) {
	db := &DB{store: store, now: time.Now}
	data, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load face database: %w", err)
	}
	if len(data) > 0 {
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse face database: %w", err)
		}
		db.entries = doc.Faces
	}
	return db, nil
}

// OpenFile loads the database from a JSON file, creating it on first save.
func OpenFile(path string) (*DB, error) {
	return Open(NewJSONStore(path))
}

// Add registers an embedding under name and returns how many embeddings
// name now has.
func (db *DB) Add(name string, encoding []float32) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrEmptyName
	}
	if len(encoding) == 0 {
		return 0, ErrEmptyEncoding
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	prev := db.entries
	db.entries = append(db.entries[:len(db.entries):len(db.entries)], Entry{
		Name:     name,
		Encoding: append([]float32(nil), encoding...),
		AddedAt:  db.now(),
	})
	if err := db.saveLocked(); err != nil {
		db.entries = prev
		return 0, err
	}
	db.version++
	return db.countLocked(name), nil
}

// Remove deletes every embedding of name and returns how many were
// removed.
func (db *DB) Remove(name string) (int, error) {
	name = strings.TrimSpace(name)
	db.mu.Lock()
	defer db.mu.Unlock()

	kept := make([]Entry, 0, len(db.entries))
	for _, e := range db.entries {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	removed := len(db.entries) - len(kept)
	if removed == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	prev := db.entries
	db.entries = kept
	if err := db.saveLocked(); err != nil {
		db.entries = prev
		return 0, err
	}
	db.version++
	return removed, nil
}

// List returns the number of embeddings per name.
func (db *DB) List() map[string]int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[string]int)
	for _, e := range db.entries {
		out[e.Name]++
	}
	return out
}

// All returns parallel slices of names and embeddings. The embeddings are
// shared and must not be modified.
func (db *DB) All() (names []string, encodings [][]float32) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names = make([]string, len(db.entries))
	encodings = make([][]float32, len(db.entries))
	for i, e := range db.entries {
		names[i] = e.Name
		encodings[i] = e.Encoding
	}
	return names, encodings
}

// Len returns the total number of embeddings.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.entries)
}

// Version increases on every change.
func (db *DB) Version() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.version
}

// Close releases the store.
func (db *DB) Close() error {
	return db.store.Close()
}

func (db *DB) countLocked(name string) int {
	n := 0
	for _, e := range db.entries {
		if e.Name == name {
			n++
		}
	}
	return n
}

func (db *DB) saveLocked() error {
	data, err := json.MarshalIndent(document{Faces: db.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode face database: %w", err)
	}
	if err := db.store.Save(data); err != nil {
		return fmt.Errorf("save face database: %w", err)
	}
	return nil
}
