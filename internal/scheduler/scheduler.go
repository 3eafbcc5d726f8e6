// Package scheduler runs the fetch-and-store task on a fixed interval.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-recorder/internal/models"
	"github.com/kjstillabower/weather-recorder/internal/observability"
	"github.com/kjstillabower/weather-recorder/internal/traffic"
)

// State is the scheduler's position in its Idle → Waiting → Running loop.
type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Task is one unit of scheduled work. ingest.Task implements it.
type Task interface {
	Run(ctx context.Context) (models.WeatherRecord, error)
}

// Config holds scheduler parameters.
type Config struct {
	Interval time.Duration
	// RunOnStart fires one tick immediately instead of waiting a full interval first.
	RunOnStart bool
	// TickTimeout bounds a single tick. Zero means no extra bound beyond the client's own timeout.
	TickTimeout time.Duration
}

// Scheduler fires its task once per interval. The interval is measured from the end of
// one run to the start of the next, and ticks missed while the host was suspended are not replayed.
type Scheduler struct {
	task   Task
	cfg    Config
	logger *zap.Logger
	state  atomic.Int32
	ticks  atomic.Int64
}

// New creates a Scheduler. A non-positive interval falls back to 3 minutes.
func New(task Task, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{task: task, cfg: cfg, logger: logger}
}

// State returns the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Ticks returns the number of ticks run so far.
func (s *Scheduler) Ticks() int64 {
	return s.ticks.Load()
}

// Run blocks, firing the task on schedule until ctx is done. Task errors are logged
// and never end the loop. Returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", zap.Duration("interval", s.cfg.Interval), zap.Bool("run_on_start", s.cfg.RunOnStart))
	defer s.state.Store(int32(StateStopped))

	first := s.cfg.Interval
	if s.cfg.RunOnStart {
		first = 0
	}
	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		s.state.Store(int32(StateWaiting))
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", zap.Int64("ticks", s.Ticks()))
			return ctx.Err()
		case <-timer.C:
		}

		s.state.Store(int32(StateRunning))
		s.tick(ctx)
		timer.Reset(s.cfg.Interval)
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	n := s.ticks.Add(1)
	logger := s.logger.With(zap.String("tick_id", uuid.New().String()), zap.Int64("tick", n))
	ctx = observability.WithLogger(ctx, logger)
	if s.cfg.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TickTimeout)
		defer cancel()
	}

	start := time.Now()
	_, err := s.task.Run(ctx)
	if err != nil {
		category := models.CategorizeError(err)
		traffic.RecordError()
		observability.FetchTicksTotal.WithLabelValues(string(category)).Inc()
		logger.Warn("fetch tick skipped",
			zap.String("category", string(category)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	traffic.RecordSuccess()
	observability.FetchTicksTotal.WithLabelValues("success").Inc()
	logger.Debug("fetch tick complete", zap.Duration("duration", time.Since(start)))
}
