package facedb

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddListRemove(t *testing.T) {
	db, err := Open(&MemoryStore{})
	require.NoError(t, err)

	n, err := db.Add("Alice", []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = db.Add(" Alice ", []float32{0.9, 0.1})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = db.Add("Bob", []float32{0, 1})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"Alice": 2, "Bob": 1}, db.List())
	assert.Equal(t, 3, db.Len())

	removed, err := db.Remove("Alice")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, map[string]int{"Bob": 1}, db.List())

	_, err = db.Remove("Alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdd_Invalid(t *testing.T) {
	db, err := Open(&MemoryStore{})
	require.NoError(t, err)

	_, err = db.Add("  ", []float32{1})
	assert.ErrorIs(t, err, ErrEmptyName)
	_, err = db.Add("Alice", nil)
	assert.ErrorIs(t, err, ErrEmptyEncoding)
	assert.Zero(t, db.Version())
}

func TestAll_CopiesInput(t *testing.T) {
	db, _ := Open(&MemoryStore{})
	enc := []float32{1, 2, 3}
	_, err := db.Add("Alice", enc)
	require.NoError(t, err)
	enc[0] = 99

	names, encs := db.All()
	assert.Equal(t, []string{"Alice"}, names)
	assert.Equal(t, float32(1), encs[0][0])
}

func TestVersion(t *testing.T) {
	db, _ := Open(&MemoryStore{})
	v0 := db.Version()
	db.Add("Alice", []float32{1})
	assert.Greater(t, db.Version(), v0)
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "faces.json")

	db, err := OpenFile(path)
	require.NoError(t, err)
	_, err = db.Add("Alice", []float32{0.5, -0.5})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	names, encs := reopened.All()
	assert.Equal(t, []string{"Alice"}, names)
	assert.Equal(t, []float32{0.5, -0.5}, encs[0])
}

type failingStore struct{ MemoryStore }

func (f *failingStore) Save([]byte) error { return errors.New("disk full") }

func TestSaveFailureRollsBack(t *testing.T) {
	db, err := Open(&failingStore{})
	require.NoError(t, err)

	_, err = db.Add("Alice", []float32{1})
	require.Error(t, err)
	assert.Zero(t, db.Len())
}

func TestOpen_Corrupt(t *testing.T) {
	store := &MemoryStore{}
	store.Save([]byte("{not json"))
	_, err := Open(store)
	assert.Error(t, err)
}
