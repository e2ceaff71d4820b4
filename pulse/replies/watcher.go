// Package replies polls the mailbox and attaches each approval reply to
// the Job that is waiting on its token.
package replies

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
	"github.com/teranos/rpawatch/mail"
)

var repliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rpawatch_replies_total",
	Help: "Polled replies by outcome",
}, []string{"result"})

// ReplyRecorder attaches a reply to the Job waiting on token
type ReplyRecorder interface {
	RecordReply(token, body string) (*jobs.Job, error)
}

// Trigger starts processing of a Job without waiting for it
type Trigger interface {
	Trigger(jobID string)
}

// Config holds watcher configuration
type Config struct {
	Interval time.Duration // default 20s
}

// DefaultConfig returns the default poll interval
func DefaultConfig() Config {
	return Config{Interval: 20 * time.Second}
}

// Watcher polls unseen mail on an interval
type Watcher struct {
	poller  mail.Poller
	jobs    ReplyRecorder
	trigger Trigger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger

	mu       sync.Mutex
	interval time.Duration
	reset    chan time.Duration
}

// NewWatcher creates a watcher. trigger may be nil, in which case matched
// Jobs are picked up by the next scan.
func NewWatcher(poller mail.Poller, jobStore ReplyRecorder, trigger Trigger, cfg Config, log *zap.SugaredLogger) *Watcher {
	return NewWatcherWithContext(context.Background(), poller, jobStore, trigger, cfg, log)
}

// NewWatcherWithContext creates a watcher with a parent context
func NewWatcherWithContext(ctx context.Context, poller mail.Poller, jobStore ReplyRecorder, trigger Trigger, cfg Config, log *zap.SugaredLogger) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	watchCtx, cancel := context.WithCancel(ctx)
	return &Watcher{
		poller:   poller,
		jobs:     jobStore,
		trigger:  trigger,
		ctx:      watchCtx,
		cancel:   cancel,
		logger:   log,
		interval: cfg.Interval,
		reset:    make(chan time.Duration, 1),
	}
}

// Start begins polling
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Infow("Reply watcher started", logger.FieldInterval, w.Interval().String())
}

// Stop gracefully stops polling
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()
	w.logger.Infow("Reply watcher stopped")
}

// Interval returns the current poll interval
func (w *Watcher) Interval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.interval
}

// SetInterval changes the interval of a running watcher
func (w *Watcher) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	w.mu.Lock()
	changed := d != w.interval
	w.interval = d
	w.mu.Unlock()
	if !changed {
		return
	}
	select {
	case <-w.reset:
	default:
	}
	w.reset <- d
	w.logger.Infow("Reply watcher interval changed", logger.FieldInterval, d.String())
}

func (w *Watcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case d := <-w.reset:
			ticker.Reset(d)
		case <-ticker.C:
			if _, err := w.Poll(w.ctx); err != nil {
				w.logger.Warnw("Reply poll failed", logger.FieldError, err)
			}
		}
	}
}

// Poll fetches unseen replies once and returns how many matched a Job
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	replies, err := w.poller.PollUnseen(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to poll mailbox")
	}

	matched := 0
	for _, r := range replies {
		if w.handle(r) {
			matched++
		}
	}
	return matched, nil
}

func (w *Watcher) handle(r mail.Reply) bool {
	token, ok := mail.ExtractToken(r.Subject)
	if !ok {
		repliesTotal.WithLabelValues("no_token").Inc()
		w.logger.Debugw("Ignoring reply without token", logger.FieldSubject, r.Subject)
		return false
	}

	job, err := w.jobs.RecordReply(token, r.Body)
	if err != nil {
		if errors.IsNotFound(err) {
			repliesTotal.WithLabelValues("unmatched").Inc()
			w.logger.Debugw("No job awaiting reply", logger.FieldToken, token)
			return false
		}
		repliesTotal.WithLabelValues("error").Inc()
		w.logger.Warnw("Failed to record reply", logger.FieldToken, token, logger.FieldError, err)
		return false
	}

	repliesTotal.WithLabelValues("matched").Inc()
	w.logger.Infow("Reply received",
		logger.FieldJobID, job.ID,
		logger.FieldToken, token)

	if w.trigger != nil {
		w.trigger.Trigger(job.ID)
	}
	return true
}
