package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-perception/internal/log"
	"github.com/teslashibe/go-perception/pkg/tracking"
)

type sinkCall struct {
	id   int
	name string
	conf float64
}

type fakeSink struct {
	mu    sync.Mutex
	calls []sinkCall
	gone  map[int]bool
	done  chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{gone: map[int]bool{}, done: make(chan struct{}, 16)}
}

func (s *fakeSink) SetRecognitionResult(id int, name string, conf float64) bool {
	s.mu.Lock()
	s.calls = append(s.calls, sinkCall{id, name, conf})
	ok := !s.gone[id]
	s.mu.Unlock()
	s.done <- struct{}{}
	return ok
}

func (s *fakeSink) results() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkCall(nil), s.calls...)
}

func (s *fakeSink) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for result %d", i+1)
		}
	}
}

// gatedIdentifier blocks every call until release is closed.
type gatedIdentifier struct {
	started chan int
	release chan struct{}
	result  func(Task) (Result, error)
}

func (g *gatedIdentifier) Identify(ctx context.Context, task Task) (Result, error) {
	g.started <- task.TrackID
	select {
	case <-g.release:
	case <-ctx.Done():
		return Unknown, ctx.Err()
	}
	return g.result(task)
}

type funcIdentifier func(context.Context, Task) (Result, error)

func (f funcIdentifier) Identify(ctx context.Context, task Task) (Result, error) { return f(ctx, task) }

func runScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestScheduler_LatestWins(t *testing.T) {
	ident := &gatedIdentifier{
		started: make(chan int, 8),
		release: make(chan struct{}),
		result: func(task Task) (Result, error) {
			return Result{Name: "Alice", Confidence: 0.8}, nil
		},
	}
	sink := newFakeSink()
	s := NewScheduler(ident, sink, time.Second, log.Discard())
	runScheduler(t, s)

	assert.False(t, s.Submit(Task{TrackID: 1}))
	select {
	case id := <-ident.started:
		require.Equal(t, 1, id)
	case <-time.After(2 * time.Second):
		t.Fatal("worker never started")
	}

	assert.False(t, s.Submit(Task{TrackID: 2}))
	assert.True(t, s.Submit(Task{TrackID: 3}), "unstarted task should be replaced")
	close(ident.release)

	sink.wait(t, 2)
	got := sink.results()
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].id)
	assert.Equal(t, 3, got[1].id)

	stats := s.Stats()
	assert.EqualValues(t, 3, stats.Submitted)
	assert.EqualValues(t, 1, stats.Replaced)
	assert.EqualValues(t, 2, stats.Completed)
}

func TestScheduler_ErrorBecomesUnknown(t *testing.T) {
	ident := funcIdentifier(func(context.Context, Task) (Result, error) {
		return Result{Name: "Alice", Confidence: 0.9}, errors.New("model exploded")
	})
	sink := newFakeSink()
	s := NewScheduler(ident, sink, time.Second, log.Discard())
	runScheduler(t, s)

	s.Submit(Task{TrackID: 7})
	sink.wait(t, 1)

	got := sink.results()
	require.Len(t, got, 1)
	assert.Equal(t, sinkCall{7, tracking.UnknownName, 0}, got[0])
	assert.EqualValues(t, 1, s.Stats().Failed)
}

func TestScheduler_EmptyNameIsUnknown(t *testing.T) {
	ident := funcIdentifier(func(context.Context, Task) (Result, error) {
		return Result{}, nil
	})
	sink := newFakeSink()
	s := NewScheduler(ident, sink, time.Second, log.Discard())
	runScheduler(t, s)

	s.Submit(Task{TrackID: 2})
	sink.wait(t, 1)
	assert.Equal(t, tracking.UnknownName, sink.results()[0].name)
}

func TestScheduler_Timeout(t *testing.T) {
	ident := funcIdentifier(func(ctx context.Context, _ Task) (Result, error) {
		<-ctx.Done()
		return Unknown, ctx.Err()
	})
	sink := newFakeSink()
	s := NewScheduler(ident, sink, 20*time.Millisecond, log.Discard())
	runScheduler(t, s)

	s.Submit(Task{TrackID: 4})
	sink.wait(t, 1)
	assert.Equal(t, tracking.UnknownName, sink.results()[0].name)
	assert.EqualValues(t, 1, s.Stats().Failed)
}

func TestScheduler_OrphanedResult(t *testing.T) {
	ident := funcIdentifier(func(context.Context, Task) (Result, error) {
		return Result{Name: "Bob", Confidence: 0.7}, nil
	})
	sink := newFakeSink()
	sink.gone[9] = true
	s := NewScheduler(ident, sink, time.Second, log.Discard())
	runScheduler(t, s)

	s.Submit(Task{TrackID: 9})
	sink.wait(t, 1)
	assert.Eventually(t, func() bool { return s.Stats().Orphaned == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, s.Idle, time.Second, 5*time.Millisecond)
}

func TestScheduler_SubmitWithoutWorker(t *testing.T) {
	s := NewScheduler(funcIdentifier(nil), newFakeSink(), 0, log.Discard())
	assert.True(t, s.Idle())
	assert.False(t, s.Submit(Task{TrackID: 1}))
	assert.True(t, s.Submit(Task{TrackID: 2}))
	assert.False(t, s.Idle())
}
