// Package cron drives job status polling on top of robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/kontoexport/internal/domain/jobs"
	"github.com/FACorreiaa/kontoexport/pkg/metrics"
)

// DefaultInterval is the delay between status checks.
const DefaultInterval = 2 * time.Second

// StatusFetcher reads the current state of a job.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, jobID string) (*jobs.Job, error)
}

// TickFunc receives every non-terminal status.
type TickFunc func(job *jobs.Job)

// TerminalFunc is called once per run: with the job when it reached a
// terminal status, or with the error that stopped polling.
type TerminalFunc func(job *jobs.Job, err error)

// PollScheduler repeatedly checks one job until it finishes. At most one
// run is active per scheduler.
type PollScheduler struct {
	fetcher  StatusFetcher
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu  sync.Mutex
	run *pollRun
}

type pollRun struct {
	jobID    string
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	finished atomic.Bool
}

// every is a fixed-delay schedule. cron.Every rounds to whole seconds,
// which is too coarse for short intervals.
type every time.Duration

func (d every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}

// NewPollScheduler creates a scheduler. A non-positive interval selects
// DefaultInterval. m may be nil.
func NewPollScheduler(fetcher StatusFetcher, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *PollScheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &PollScheduler{
		fetcher:  fetcher,
		interval: interval,
		logger:   logger,
		metrics:  m,
	}
}

// Start checks jobID immediately and then every interval until a terminal
// status, a status error or Stop. A run that is already active is stopped first.
func (s *PollScheduler) Start(jobID string, onTick TickFunc, onTerminal TerminalFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	cronLogger := cron.VerbosePrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug))
	ctx, cancel := context.WithCancel(context.Background())
	run := &pollRun{
		jobID:  jobID,
		cron:   cron.New(cron.WithLogger(cronLogger)),
		ctx:    ctx,
		cancel: cancel,
	}

	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger)).Then(cron.FuncJob(func() {
		s.check(run, onTick, onTerminal)
	}))
	run.cron.Schedule(every(s.interval), job)

	s.run = run
	run.cron.Start()
	go job.Run()

	s.logger.Info("polling started",
		slog.String("job_id", jobID),
		slog.Duration("interval", s.interval),
	)
}

// Stop cancels the active run, if any. In-flight status requests are aborted
// and their results dropped.
func (s *PollScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Running reports whether a run is active.
func (s *PollScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

func (s *PollScheduler) stopLocked() {
	if s.run == nil {
		return
	}
	if s.run.finished.CompareAndSwap(false, true) {
		s.logger.Info("polling stopped", slog.String("job_id", s.run.jobID))
	}
	s.halt(s.run)
	s.run = nil
}

// halt stops the timer without waiting for a running check.
func (s *PollScheduler) halt(run *pollRun) {
	run.cancel()
	run.cron.Stop()
}

// finish ends run after a terminal outcome. It returns false when the run
// was already stopped.
func (s *PollScheduler) finish(run *pollRun) bool {
	if !run.finished.CompareAndSwap(false, true) {
		return false
	}

	s.halt(run)

	s.mu.Lock()
	if s.run == run {
		s.run = nil
	}
	s.mu.Unlock()
	return true
}

func (s *PollScheduler) check(run *pollRun, onTick TickFunc, onTerminal TerminalFunc) {
	if run.finished.Load() {
		return
	}

	job, err := s.fetcher.FetchStatus(run.ctx, run.jobID)
	if run.finished.Load() {
		return
	}

	if err != nil {
		s.metrics.ObservePoll("error")
		if !s.finish(run) {
			return
		}
		s.logger.Warn("status check failed, polling stopped",
			slog.String("job_id", run.jobID),
			slog.Any("error", err),
		)
		onTerminal(nil, err)
		return
	}

	if job.ID == "" {
		job.ID = run.jobID
	}
	s.metrics.ObservePoll(string(job.Status))

	if job.Status.IsTerminal() {
		if !s.finish(run) {
			return
		}
		s.logger.Info("job finished",
			slog.String("job_id", run.jobID),
			slog.String("status", string(job.Status)),
		)
		onTerminal(job, nil)
		return
	}

	s.logger.Debug("job still running",
		slog.String("job_id", run.jobID),
		slog.String("status", string(job.Status)),
	)
	if onTick != nil {
		onTick(job)
	}
}
