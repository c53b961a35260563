// Package recognition identifies tracked faces off the perception loop.
//
// The Scheduler holds at most one pending task. Submitting replaces any
// task the worker has not picked up yet, so the worker always runs on the
// most recent frame.
package recognition

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-perception/pkg/camera"
	"github.com/teslashibe/go-perception/pkg/tracking"
	"github.com/teslashibe/go-perception/pkg/tracking/detection"
)

// Task asks for the identity of one track in one frame.
type Task struct {
	TrackID int
	Image   camera.Image
	Face    detection.Detection
}

// Result is the outcome of a task.
type Result struct {
	Name       string
	Confidence float64
}

// Unknown is the result of a failed or unmatched identification.
var Unknown = Result{Name: tracking.UnknownName}

// Identifier runs recognition for a task.
type Identifier interface {
	Identify(ctx context.Context, task Task) (Result, error)
}

// ResultSink receives results. It reports false if the track is gone.
type ResultSink interface {
	SetRecognitionResult(id int, name string, confidence float64) bool
}

// SchedulerStats counts scheduler activity.
type SchedulerStats struct {
	Submitted uint64 `json:"submitted"`
	Replaced  uint64 `json:"replaced"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Orphaned  uint64 `json:"orphaned"`
}

// Scheduler is a single-slot, latest-wins recognition mailbox with one
// worker.
type Scheduler struct {
	ident   Identifier
	sink    ResultSink
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	slot   *Task
	signal chan struct{}

	submitted, replaced, completed, failed, orphaned atomic.Uint64
	busy                                             atomic.Bool
}

// NewScheduler creates a scheduler. timeout bounds each identification.
func NewScheduler(ident Identifier, sink ResultSink, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		ident:   ident,
		sink:    sink,
		logger:  logger,
		timeout: timeout,
		signal:  make(chan struct{}, 1),
	}
}

// Submit places task in the slot. It reports whether an unstarted task was
// replaced. Submit never blocks.
func (s *Scheduler) Submit(task Task) bool {
	s.mu.Lock()
	replaced := s.slot != nil
	s.slot = &task
	s.mu.Unlock()

	s.submitted.Add(1)
	if replaced {
		s.replaced.Add(1)
	}
	select {
	case s.signal <- struct{}{}:
	default:
	}
	return replaced
}

// Idle reports whether the slot is empty and no task is running.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	empty := s.slot == nil
	s.mu.Unlock()
	return empty && !s.busy.Load()
}

// Run processes tasks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.signal:
		}

		for {
			task := s.take()
			if task == nil {
				break
			}
			s.process(ctx, task)
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

func (s *Scheduler) take() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.slot
	s.slot = nil
	if t != nil {
		s.busy.Store(true)
	}
	return t
}

func (s *Scheduler) process(ctx context.Context, task *Task) {
	defer s.busy.Store(false)

	tctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.ident.Identify(tctx, *task)
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("recognition failed", "track", task.TrackID, "error", err)
		res = Unknown
	} else {
		s.completed.Add(1)
	}
	if res.Name == "" {
		res.Name = tracking.UnknownName
	}

	if !s.sink.SetRecognitionResult(task.TrackID, res.Name, res.Confidence) {
		s.orphaned.Add(1)
		s.logger.Debug("track gone before recognition finished", "track", task.TrackID)
		return
	}
	s.logger.Debug("recognition done",
		"track", task.TrackID,
		"name", res.Name,
		"confidence", res.Confidence,
		"elapsed", time.Since(start))
}

// Stats returns the scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Submitted: s.submitted.Load(),
		Replaced:  s.replaced.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Orphaned:  s.orphaned.Load(),
	}
}
