// Package scanner discovers faulted executions and makes sure each has a
// Job that gets processed.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/logger"
	"github.com/teranos/rpawatch/normalize"
	"github.com/teranos/rpawatch/records"
)

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpawatch_scanner_scans_total",
		Help: "Completed scan cycles by result",
	}, []string{"result"})

	jobsDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rpawatch_scanner_jobs_created_total",
		Help: "Jobs created for newly faulted executions",
	})

	triggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpawatch_scanner_triggers_total",
		Help: "Processing triggers by source",
	}, []string{"source"})
)

// Executions is the read side of the execution store
type Executions interface {
	ListFaulted() ([]*records.Execution, error)
	Get(executionID string) (*records.Execution, error)
}

// JobEnsurer creates or returns the Job of an execution
type JobEnsurer interface {
	Ensure(executionID string) (*jobs.Job, bool, error)
}

// Trigger starts processing of a Job without waiting for it
type Trigger interface {
	Trigger(jobID string)
}

// Auditor appends audit entries
type Auditor interface {
	Record(jobID, actor, message string) error
}

// Config holds scanner configuration
type Config struct {
	Interval time.Duration // default 10s
}

// DefaultConfig returns the default scan interval
func DefaultConfig() Config {
	return Config{Interval: 10 * time.Second}
}

// Scanner periodically walks faulted executions and triggers processing
// for every Job that still needs it.
type Scanner struct {
	executions Executions
	jobs       JobEnsurer
	trigger    Trigger
	audit      Auditor

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger

	mu       sync.Mutex
	interval time.Duration
	reset    chan time.Duration
	lastScan time.Time
}

// NewScanner creates a scanner
func NewScanner(executions Executions, jobStore JobEnsurer, trigger Trigger, audit Auditor, cfg Config, log *zap.SugaredLogger) *Scanner {
	return NewScannerWithContext(context.Background(), executions, jobStore, trigger, audit, cfg, log)
}

// NewScannerWithContext creates a scanner with a parent context
func NewScannerWithContext(ctx context.Context, executions Executions, jobStore JobEnsurer, trigger Trigger, audit Auditor, cfg Config, log *zap.SugaredLogger) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	scanCtx, cancel := context.WithCancel(ctx)
	return &Scanner{
		executions: executions,
		jobs:       jobStore,
		trigger:    trigger,
		audit:      audit,
		ctx:        scanCtx,
		cancel:     cancel,
		logger:     log,
		interval:   cfg.Interval,
		reset:      make(chan time.Duration, 1),
	}
}

// Start begins the scan loop
func (s *Scanner) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Infow("Scanner started", logger.FieldInterval, s.Interval().String())
}

// Stop gracefully stops the scanner
func (s *Scanner) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Infow("Scanner stopped")
}

// Interval returns the current scan interval
func (s *Scanner) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// LastScan returns when the last cycle finished
func (s *Scanner) LastScan() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan
}

// SetInterval changes the interval of a running scanner
func (s *Scanner) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	changed := d != s.interval
	s.interval = d
	s.mu.Unlock()
	if !changed {
		return
	}

	// drop a pending value so the latest wins
	select {
	case <-s.reset:
	default:
	}
	s.reset <- d
	s.logger.Infow("Scanner interval changed", logger.FieldInterval, d.String())
}

func (s *Scanner) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case d := <-s.reset:
			ticker.Reset(d)
		case <-ticker.C:
			if _, err := s.Scan(s.ctx); err != nil {
				s.logger.Warnw("Scan cycle failed", logger.FieldError, err)
			}
		}
	}
}

// Scan runs one cycle over all faulted executions and returns how many
// Jobs were triggered. A failing execution is logged and skipped.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	faulted, err := s.executions.ListFaulted()
	if err != nil {
		scansTotal.WithLabelValues("error").Inc()
		return 0, errors.Wrap(err, "failed to list faulted executions")
	}

	triggered := 0
	for _, e := range faulted {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.evaluate(e.ExecutionID, "scan")
		if err != nil {
			s.logger.Warnw("Failed to evaluate execution",
				logger.FieldExecutionID, e.ExecutionID,
				logger.FieldError, err)
			continue
		}
		if ok {
			triggered++
		}
	}

	s.mu.Lock()
	s.lastScan = time.Now()
	s.mu.Unlock()
	scansTotal.WithLabelValues("ok").Inc()

	if triggered > 0 {
		s.logger.Debugw("Scan cycle finished",
			logger.FieldCount, len(faulted),
			"triggered", triggered)
	}
	return triggered, nil
}

// Evaluate applies the scan rule to one execution. Executions that are
// unknown or not faulted are ignored.
func (s *Scanner) Evaluate(ctx context.Context, executionID string) (bool, error) {
	e, err := s.executions.Get(executionID)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if !normalize.IsFault(e.StateLower) {
		return false, nil
	}
	return s.evaluate(executionID, "feed")
}

// ExecutionUpdated lets the scanner serve as the feed listener's fault hook
func (s *Scanner) ExecutionUpdated(ctx context.Context, executionID string) {
	if _, err := s.Evaluate(ctx, executionID); err != nil {
		s.logger.Warnw("Fast-path evaluation failed",
			logger.FieldExecutionID, executionID,
			logger.FieldError, err)
	}
}

func (s *Scanner) evaluate(executionID, source string) (bool, error) {
	job, created, err := s.jobs.Ensure(executionID)
	if err != nil {
		return false, err
	}

	if created {
		jobsDiscovered.Inc()
		s.logger.Infow("Job created for faulted execution",
			logger.FieldJobID, job.ID,
			logger.FieldExecutionID, executionID)
		if s.audit != nil {
			if err := s.audit.Record(job.ID, jobs.ActorScanner, "job created for faulted execution "+executionID); err != nil {
				s.logger.Warnw("Failed to record audit entry", logger.FieldJobID, job.ID, logger.FieldError, err)
			}
		}
	}

	if !jobs.NeedsProcessing(job, created) {
		return false, nil
	}

	triggersTotal.WithLabelValues(source).Inc()
	s.trigger.Trigger(job.ID)
	return true, nil
}
