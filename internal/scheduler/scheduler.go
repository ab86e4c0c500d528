package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"SignalScanner/internal/model"
	"SignalScanner/internal/notifier"
	"SignalScanner/internal/scan"
)

// ErrScanRunning is returned when a scan is requested while one is active.
var ErrScanRunning = errors.New("a scan is already running")

// Scanner runs incremental scans.
type Scanner interface {
	ScanIncremental(ctx context.Context, req scan.IncrementalRequest, progress scan.ProgressFunc) (model.RunSummary, error)
}

// RunLister reads the scan run log.
type RunLister interface {
	Runs(ctx context.Context, limit int) ([]model.RunSummary, error)
}

// Notifier delivers summaries. It may be nil.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler manages the cron-driven incremental scan.
type Scheduler struct {
	Cron     *cron.Cron
	Scanner  Scanner
	Runs     RunLister
	Notifier Notifier
	Request  scan.IncrementalRequest
	Ctx      context.Context

	log     zerolog.Logger
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new Scheduler. notifier may be nil.
func NewScheduler(ctx context.Context, scanner Scanner, runs RunLister, n Notifier, req scan.IncrementalRequest, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Scanner:  scanner,
		Runs:     runs,
		Notifier: n,
		Request:  req,
		Ctx:      ctx,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Register adds the incremental scan task.
func (s *Scheduler) Register(incrementalCron string) error {
	if _, err := s.Cron.AddFunc(incrementalCron, s.incrementalTask); err != nil {
		return fmt.Errorf("register incremental task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running task.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunIncrementalNow runs one incremental scan unless another is active.
func (s *Scheduler) RunIncrementalNow() (model.RunSummary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return model.RunSummary{}, ErrScanRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	progress := func(processed, total int, msg string) {
		s.log.Debug().Int("processed", processed).Int("total", total).Msg(msg)
	}
	return s.Scanner.ScanIncremental(s.Ctx, s.Request, progress)
}

// RunNow runs the scheduled task immediately, notification included.
func (s *Scheduler) RunNow() {
	s.incrementalTask()
}

func (s *Scheduler) incrementalTask() {
	s.log.Info().Msg("running incremental scan")
	sum, err := s.RunIncrementalNow()
	if errors.Is(err, ErrScanRunning) {
		s.log.Warn().Msg("previous scan still running, skipping")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("incremental scan")
		if sum.Attempted == 0 {
			s.trySend(fmt.Sprintf("❌ Incremental scan failed: %v", err))
			return
		}
	}
	s.trySend(notifier.FormatSummary(sum))
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	switch command {
	case "/incremental":
		if s.isRunning() {
			return "A scan is already running."
		}
		s.incrementalTask()
		return ""
	case "/last":
		runs, err := s.Runs.Runs(ctx, 1)
		if err != nil {
			s.log.Error().Err(err).Msg("read run log")
			return "Could not read the run log."
		}
		if len(runs) == 0 {
			return "No scans recorded yet."
		}
		return notifier.FormatSummary(runs[0])
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}
