package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/i474232898/radar-data-cache/internal/logging"
)

const defaultInterval = 5 * time.Minute

// FrameFetcher is the part of the radar service the scheduler drives.
type FrameFetcher interface {
	FetchLatest(ctx context.Context) (string, error)
}

// Config controls when and how long each fetch runs.
type Config struct {
	// Interval between fetches; ignored when Cron is set.
	Interval time.Duration
	// Cron is a standard five-field expression evaluated in UTC.
	Cron    string
	Timeout time.Duration
}

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	LastRunID string    `json:"lastRunId,omitempty"`
	LastRunAt time.Time `json:"lastRunAt,omitempty"`
	LastFrame string    `json:"lastFrame,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// Scheduler periodically fetches the newest radar frame into the cache.
type Scheduler struct {
	scheduler *gocron.Scheduler
	fetcher   FrameFetcher
	cfg       Config
	logger    *slog.Logger

	runs      *atomic.Int64
	failures  *atomic.Int64
	lastRunID *atomic.String
	lastRunAt *atomic.Int64
	lastFrame *atomic.String
	lastError *atomic.String
}

// New creates a new Scheduler.
func New(fetcher FrameFetcher, cfg Config, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Scheduler{
		scheduler: s,
		fetcher:   fetcher,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "scheduler"),
		runs:      atomic.NewInt64(0),
		failures:  atomic.NewInt64(0),
		lastRunID: atomic.NewString(""),
		lastRunAt: atomic.NewInt64(0),
		lastFrame: atomic.NewString(""),
		lastError: atomic.NewString(""),
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// Interval schedules run once immediately; cron schedules wait for their
// first match.
func (s *Scheduler) Start() error {
	var job *gocron.Scheduler
	if s.cfg.Cron != "" {
		job = s.scheduler.Cron(s.cfg.Cron)
	} else {
		job = s.scheduler.Every(s.cfg.Interval)
	}

	_, err := job.Do(func() {
		_ = s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.logger.Info("scheduler started",
		logging.String("cron", s.cfg.Cron),
		logging.Duration("interval", s.cfg.Interval),
	)
	s.scheduler.StartAsync()
	return nil
}

// RunOnce performs a single fetch with the configured timeout and records
// its outcome.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	runID := uuid.NewString()
	started := time.Now().UTC()
	logger := s.logger.With(logging.String("run_id", runID))

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	s.runs.Inc()
	s.lastRunID.Store(runID)
	s.lastRunAt.Store(started.UnixNano())

	logger.Debug("running radar fetch job")
	name, err := s.fetcher.FetchLatest(ctx)
	if err != nil {
		s.failures.Inc()
		s.lastError.Store(err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("radar fetch timed out", logging.Duration("timeout", s.cfg.Timeout))
		} else {
			logger.Warn("radar fetch failed", logging.Error(err))
		}
		return err
	}

	s.lastFrame.Store(name)
	s.lastError.Store("")
	logger.Info("radar fetch completed",
		logging.String("name", name),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// Stats returns the current counters.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		Runs:      s.runs.Load(),
		Failures:  s.failures.Load(),
		LastRunID: s.lastRunID.Load(),
		LastFrame: s.lastFrame.Load(),
		LastError: s.lastError.Load(),
	}
	if ns := s.lastRunAt.Load(); ns > 0 {
		st.LastRunAt = time.Unix(0, ns).UTC()
	}
	return st
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
