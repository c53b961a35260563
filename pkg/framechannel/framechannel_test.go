package framechannel

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(fill byte) *Snapshot {
	img := bytes.Repeat([]byte{fill}, 4*3*3)
	meta := NewMetadata(0.5, -0.1)
	meta.Offsets = &Offsets{DX: 0.035, DZ: 0.044}
	return &Snapshot{
		Timestamp: 1700000000.25,
		Width:     4,
		Height:    3,
		Meta:      meta,
		Image:     img,
	}
}

func TestHeader_Layout(t *testing.T) {
	h := Header{
		Magic:     Magic,
		Seq:       7,
		Timestamp: 12.5,
		Width:     320,
		Height:    240,
		ImageLen:  320 * 240 * 3,
		MetaLen:   42,
	}
	b := make([]byte, HeaderSize)
	h.Put(b)

	assert.Equal(t, []byte("PFR2"), b[0:4])
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(b[4:8]))
	assert.Equal(t, 12.5, math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])))
	assert.Equal(t, uint32(320), binary.LittleEndian.Uint32(b[16:20]))
	assert.Equal(t, uint32(240), binary.LittleEndian.Uint32(b[20:24]))
	assert.Equal(t, uint32(320*240*3), binary.LittleEndian.Uint32(b[24:28]))
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(b[28:32]))

	got, err := ParseHeader(b, 0)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestParseHeader_Invalid(t *testing.T) {
	good := make([]byte, HeaderSize)
	Header{Magic: Magic, ImageLen: 100, MetaLen: 10}.Put(good)

	badMagic := append([]byte(nil), good...)
	copy(badMagic, "XXXX")

	tests := []struct {
		name       string
		data       []byte
		maxPayload int
	}{
		{"short", good[:20], 0},
		{"bad magic", badMagic, 0},
		{"payload too large", good, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeader(tt.data, tt.maxPayload)
			require.ErrorIs(t, err, ErrNotReady)
			var herr *HeaderError
			assert.True(t, errors.As(err, &herr))
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	s := testSnapshot(9)
	s.Seq = 3

	data, err := Encode(s)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got.Seq)
	assert.Equal(t, s.Image, got.Image)
	assert.Equal(t, s.Width, got.Width)
	assert.InDelta(t, 0.5*180/math.Pi, got.Meta.HeadYaw, 1e-9)
	require.NotNil(t, got.Meta.Offsets)
	assert.Equal(t, 0.035, got.Meta.Offsets.DX)

	_, err = Decode(data[:len(data)-1])
	require.ErrorIs(t, err, ErrNotReady, "truncated body")
}

func TestDecode_Malformed(t *testing.T) {
	headerOnly := make([]byte, HeaderSize)
	Header{Magic: Magic, Width: 2, Height: 2, ImageLen: 12}.Put(headerOnly)

	short := make([]byte, HeaderSize+5)
	Header{Magic: Magic, Width: 2, Height: 2, ImageLen: 12}.Put(short)

	wrongSize := make([]byte, HeaderSize+10)
	Header{Magic: Magic, Width: 2, Height: 2, ImageLen: 10}.Put(wrongSize)

	tests := []struct {
		name string
		data []byte
	}{
		{"header only", headerOnly},
		{"short payload", short},
		{"image size mismatch", wrongSize},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				snap *Snapshot
				err  error
			)
			require.NotPanics(t, func() { snap, err = Decode(tt.data) })
			assert.Nil(t, snap)
			require.ErrorIs(t, err, ErrNotReady)
			var herr *HeaderError
			assert.True(t, errors.As(err, &herr))
		})
	}
}

func TestHTTPReader_HeaderOnlyBody(t *testing.T) {
	body := make([]byte, HeaderSize)
	Header{Magic: Magic, Seq: 1, Width: 2, Height: 2, ImageLen: 12}.Put(body)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	r := NewHTTPReader(srv.URL, time.Second)
	defer r.Close()
	_, err := r.Read(context.Background())
	require.ErrorIs(t, err, ErrNotReady)
}

func TestSnapshot_CaptureTime(t *testing.T) {
	s := &Snapshot{Timestamp: 1700000000.5}
	assert.Equal(t, int64(1700000000500), s.CaptureTime().UnixMilli())
}

func TestShared_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame")
	w, err := NewWriter(path, 4096)
	require.NoError(t, err)
	defer w.Close()

	r := NewReader(path)
	defer r.Close()

	_, err = r.Read()
	require.ErrorIs(t, err, ErrNotReady, "nothing published yet")

	require.NoError(t, w.Publish(testSnapshot(1)))
	got, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.Seq)
	assert.Equal(t, byte(1), got.Image[0])

	_, err = r.Read()
	require.ErrorIs(t, err, ErrNoNewFrame)

	require.NoError(t, w.Publish(testSnapshot(2)))
	require.NoError(t, w.Publish(testSnapshot(3)))
	got, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got.Seq, "reader skips to the newest frame")
	assert.Equal(t, byte(3), got.Image[0])
}

func TestShared_ReaderBeforeWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame")
	r := NewReader(path)
	defer r.Close()

	_, err := r.Read()
	require.ErrorIs(t, err, ErrNotReady)

	w, err := NewWriter(path, 4096)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Publish(testSnapshot(5)))

	got, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, byte(5), got.Image[0])
}

func TestShared_FrameTooLarge(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "frame"), 64)
	require.NoError(t, err)
	defer w.Close()

	s := testSnapshot(1)
	s.Image = make([]byte, 1024)
	require.ErrorIs(t, w.Publish(s), ErrFrameTooLarge)
}

func TestShared_WriterRestartContinuesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame")
	w, err := NewWriter(path, 4096)
	require.NoError(t, err)
	require.NoError(t, w.Publish(testSnapshot(1)))
	require.NoError(t, w.Publish(testSnapshot(2)))
	require.NoError(t, w.Close())

	w2, err := NewWriter(path, 4096)
	require.NoError(t, err)
	defer w2.Close()
	assert.Equal(t, uint32(2), w2.Seq())
}

func TestShared_BadMagicNotReady(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame")
	w, err := NewWriter(path, 4096)
	require.NoError(t, err)
	require.NoError(t, w.Publish(testSnapshot(1)))
	require.NoError(t, w.Close())

	corruptMagic(t, path)

	_, err = NewReader(path).Read()
	require.ErrorIs(t, err, ErrNotReady)
}

// Every frame a concurrent reader returns must be internally consistent:
// the image is filled with one byte value derived from its sequence.
func TestShared_ConcurrentNoTornFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame")
	w, err := NewWriter(path, 64*1024)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil; i++ {
			s := testSnapshot(0)
			s.Width, s.Height = 128, 64
			s.Image = bytes.Repeat([]byte{byte((i + 1) % 251)}, 128*64*3)
			_ = w.Publish(s)
		}
	}()

	r := NewReader(path)
	defer r.Close()
	var frames int
	for ctx.Err() == nil {
		got, err := r.Read()
		if err != nil {
			continue
		}
		frames++
		want := got.Image[0]
		for _, b := range got.Image {
			if b != want {
				t.Fatalf("torn frame seq %d: mixed bytes %d and %d", got.Seq, want, b)
			}
		}
		assert.Equal(t, byte(got.Seq%251), want)
	}
	wg.Wait()
	assert.Positive(t, frames)
}

func corruptMagic(t *testing.T, path string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteAt([]byte("XXXX"), 0)
	require.NoError(t, err)
}

func TestHandler(t *testing.T) {
	latest := NewLatest()
	app := fiber.New()
	app.Get(FramePath, Handler(latest))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, FramePath, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, latest.Publish(testSnapshot(4)))
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, FramePath, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-Frame-Seq"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	got, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, byte(4), got.Image[0])
}

func frameServer(t *testing.T, latest *Latest, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		data, _, ok := latest.Encoded()
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPReader(t *testing.T) {
	latest := NewLatest()
	var hits atomic.Int32
	srv := frameServer(t, latest, &hits)

	r := NewHTTPReader(srv.URL, time.Second)
	defer r.Close()

	_, err := r.Read(context.Background())
	require.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, latest.Publish(testSnapshot(6)))
	got, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(6), got.Image[0])

	_, err = r.Read(context.Background())
	require.ErrorIs(t, err, ErrNoNewFrame)
}

func TestHTTPReader_ResetsOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := NewHTTPReader(url, 200*time.Millisecond)
	_, err := r.Read(context.Background())
	require.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, uint64(1), r.Resets())
}

func TestFallbackSource_BadMagicUsesHTTP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame")
	w, err := NewWriter(path, 4096)
	require.NoError(t, err)
	require.NoError(t, w.Publish(testSnapshot(1)))
	require.NoError(t, w.Close())
	corruptMagic(t, path)

	latest := NewLatest()
	require.NoError(t, latest.Publish(testSnapshot(8)))
	var hits atomic.Int32
	srv := frameServer(t, latest, &hits)

	src := NewFallbackSource(NewReader(path), NewHTTPReader(srv.URL, time.Second), nil)
	defer src.Close()

	got, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(8), got.Image[0])
	assert.Equal(t, int32(1), hits.Load())

	stats := src.Stats()
	assert.Equal(t, uint64(1), stats.HTTPFrames)
	assert.Equal(t, "http", stats.Transport)
}

func TestFallbackSource_NoNewFrameSkipsHTTP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame")
	w, err := NewWriter(path, 4096)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Publish(testSnapshot(1)))

	latest := NewLatest()
	require.NoError(t, latest.Publish(testSnapshot(2)))
	var hits atomic.Int32
	srv := frameServer(t, latest, &hits)

	src := NewFallbackSource(NewReader(path), NewHTTPReader(srv.URL, time.Second), nil)
	defer src.Close()

	got, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(1), got.Image[0])

	_, err = src.Poll(context.Background())
	require.ErrorIs(t, err, ErrNoNewFrame)
	assert.Equal(t, int32(0), hits.Load())
	assert.Equal(t, uint64(1), src.Stats().SharedFrames)
}

func TestMulti(t *testing.T) {
	a, b := NewLatest(), NewLatest()
	require.NoError(t, Multi{a, b}.Publish(testSnapshot(1)))
	assert.Equal(t, uint32(1), a.Seq())
	assert.Equal(t, uint32(1), b.Seq())
}
