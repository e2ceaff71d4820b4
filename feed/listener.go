// Package feed keeps a live connection to the RPA platform's push hub and
// ingests execution and log records into the stores.
package feed

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/rpawatch/logger"
	"github.com/teranos/rpawatch/normalize"
)

// ExecutionUpserter stores execution snapshots
type ExecutionUpserter interface {
	UpsertExecution(rec normalize.Record) (bool, error)
}

// LogStore stores log lines and reports how many an execution has
type LogStore interface {
	UpsertLog(rec normalize.Record) (bool, error)
	Count(executionID string) (int, error)
}

// FaultHook is told when new logs for an execution have been stored
type FaultHook interface {
	ExecutionUpdated(ctx context.Context, executionID string)
}

// Config tunes paging, reconnection and refresh
type Config struct {
	PageSize        int
	LogPageSize     int
	MinBackoff      time.Duration
	MaxBackoff      time.Duration
	RefreshInterval time.Duration // 0 disables periodic re-requests
}

// DefaultConfig returns the platform defaults
func DefaultConfig() Config {
	return Config{
		PageSize:        100,
		LogPageSize:     10,
		MinBackoff:      time.Second,
		MaxBackoff:      60 * time.Second,
		RefreshInterval: 60 * time.Second,
	}
}

// Listener holds one hub connection at a time and reconnects with
// exponential backoff until stopped.
type Listener struct {
	auth       Authenticator
	dialer     Dialer
	executions ExecutionUpserter
	logs       LogStore
	hook       FaultHook
	cfg        Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger
	now    func() time.Time

	mu        sync.Mutex
	connected bool
}

// NewListener creates a listener
func NewListener(auth Authenticator, dialer Dialer, executions ExecutionUpserter, logs LogStore, hook FaultHook, cfg Config, log *zap.SugaredLogger) *Listener {
	return NewListenerWithContext(context.Background(), auth, dialer, executions, logs, hook, cfg, log)
}

// NewListenerWithContext creates a listener with a parent context
func NewListenerWithContext(ctx context.Context, auth Authenticator, dialer Dialer, executions ExecutionUpserter, logs LogStore, hook FaultHook, cfg Config, log *zap.SugaredLogger) *Listener {
	defaults := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaults.PageSize
	}
	if cfg.LogPageSize <= 0 {
		cfg.LogPageSize = defaults.LogPageSize
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	listenerCtx, cancel := context.WithCancel(ctx)
	return &Listener{
		auth:       auth,
		dialer:     dialer,
		executions: executions,
		logs:       logs,
		hook:       hook,
		cfg:        cfg,
		ctx:        listenerCtx,
		cancel:     cancel,
		logger:     log,
		now:        time.Now,
	}
}

// Start begins the connection loop
func (l *Listener) Start() {
	l.wg.Add(1)
	go l.run()
	l.logger.Infow("Feed listener started", "page_size", l.cfg.PageSize)
}

// Stop closes the connection and waits for the loop to exit
func (l *Listener) Stop() {
	l.cancel()
	l.wg.Wait()
	l.logger.Infow("Feed listener stopped")
}

// Connected reports whether a hub connection is currently open
func (l *Listener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Listener) setConnected(v bool) {
	l.mu.Lock()
	l.connected = v
	l.mu.Unlock()
}

func (l *Listener) run() {
	defer l.wg.Done()

	backoff := NewBackoff(l.cfg.MinBackoff, l.cfg.MaxBackoff)
	attempt := 0
	for {
		if l.ctx.Err() != nil {
			return
		}

		attempt++
		connected, err := l.session(l.ctx, backoff)
		if l.ctx.Err() != nil {
			return
		}
		if connected {
			attempt = 1
		}

		delay := backoff.Next()
		l.logger.Warnw("Feed connection lost, reconnecting",
			logger.FieldAttempt, attempt,
			logger.FieldBackoff, delay.String(),
			logger.FieldError, err)

		select {
		case <-l.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// session runs one connection until it fails. connected reports whether
// the handshake succeeded, in which case the backoff was reset.
func (l *Listener) session(ctx context.Context, backoff *Backoff) (connected bool, err error) {
	s, err := Connect(ctx, l.auth, l.dialer)
	if err != nil {
		connectsTotal.WithLabelValues("error").Inc()
		return false, err
	}
	connectsTotal.WithLabelValues("ok").Inc()
	backoff.Reset()
	l.setConnected(true)
	defer l.setConnected(false)

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// closing the socket unblocks Read on shutdown
	go func() {
		<-sessCtx.Done()
		s.Close()
	}()

	l.logger.Infow("Feed connected")
	if err := l.requestExecutions(s); err != nil {
		return true, err
	}

	req := &logRequests{cycles: new(atomic.Uint64), sent: make(map[string]uint64)}
	if l.cfg.RefreshInterval > 0 {
		go l.refresh(sessCtx, s, req.cycles)
	}

	for {
		frames, dropped, err := s.Read()
		if err != nil {
			return true, err
		}
		if dropped > 0 {
			framesDropped.Add(float64(dropped))
			l.logger.Debugw("Dropped unparseable frames", logger.FieldCount, dropped)
		}
		for _, f := range frames {
			l.handleFrame(sessCtx, s, f, req)
		}
	}
}

// logRequests tracks which executions had logs requested in which refresh
// cycle. sent is owned by the read loop; cycles is bumped by refresh.
type logRequests struct {
	cycles *atomic.Uint64
	sent   map[string]uint64
}

func (l *Listener) refresh(ctx context.Context, s *Session, cycles *atomic.Uint64) {
	ticker := time.NewTicker(l.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycles.Add(1)
			if err := l.requestExecutions(s); err != nil {
				l.logger.Debugw("Refresh request failed", logger.FieldError, err)
				return
			}
		}
	}
}

func (l *Listener) requestExecutions(s *Session) error {
	return s.Invoke(TargetViewExecution, "1", 0, l.cfg.PageSize, nil)
}

func (l *Listener) handleFrame(ctx context.Context, s *Session, f Frame, req *logRequests) {
	switch f.Type {
	case TypePing:
		return
	case TypeCompletion:
		l.logger.Debugw("Completion received", logger.FieldInvocationID, f.InvocationID)
		return
	}

	target := CanonicalTarget(f.Target)
	if target != "" {
		framesTotal.WithLabelValues(target).Inc()
	}

	switch {
	case f.Is(TargetViewExecution):
		l.handleExecutions(s, f, req)
	case f.Is(TargetViewLogExecution):
		l.handleLogs(ctx, f)
	default:
		l.logger.Debugw("Ignoring frame",
			logger.FieldMessageType, f.Type,
			logger.FieldTarget, f.Target)
	}
}

func (l *Listener) handleExecutions(s *Session, f Frame, req *logRequests) {
	recs, err := f.ArgumentRecords()
	if err != nil {
		l.logger.Debugw("Malformed execution frame", logger.FieldError, err)
		return
	}

	for _, rec := range recs {
		stored, err := l.executions.UpsertExecution(rec)
		switch {
		case err != nil:
			recordsStored.WithLabelValues("execution", "error").Inc()
			l.logger.Warnw("Failed to store execution", logger.FieldError, err)
			continue
		case !stored:
			recordsStored.WithLabelValues("execution", "skipped").Inc()
			continue
		}
		recordsStored.WithLabelValues("execution", "stored").Inc()

		id, _ := normalize.IdentityKey(rec)
		if !normalize.IsFault(normalize.CanonicalState(rec)) {
			continue
		}
		if !l.needsLogs(req, id) {
			continue
		}
		if err := l.requestLogs(s, id); err != nil {
			l.logger.Warnw("Failed to request logs", logger.FieldExecutionID, id, logger.FieldError, err)
			continue
		}
		req.sent[id] = req.cycles.Load()
	}
}

// needsLogs asks once per refresh cycle. In later cycles it asks again only
// while nothing is stored, so a lost or failed log response is retried.
func (l *Listener) needsLogs(req *logRequests, executionID string) bool {
	cycle, seen := req.sent[executionID]
	if !seen {
		return true
	}
	current := req.cycles.Load()
	if cycle == current {
		return false
	}
	n, err := l.logs.Count(executionID)
	if err != nil {
		l.logger.Warnw("Failed to count logs", logger.FieldExecutionID, executionID, logger.FieldError, err)
		return true
	}
	if n > 0 {
		req.sent[executionID] = current
		return false
	}
	return true
}

func (l *Listener) requestLogs(s *Session, executionID string) error {
	today := l.now().UTC()
	return s.Invoke(TargetViewLogExecution, executionID,
		executionID, 0, l.cfg.LogPageSize, today.Day(), int(today.Month()), today.Year(), "")
}

func (l *Listener) handleLogs(ctx context.Context, f Frame) {
	recs, err := f.ArgumentRecords()
	if err != nil {
		l.logger.Debugw("Malformed log frame", logger.FieldError, err)
		return
	}

	touched := make(map[string]struct{})
	for _, rec := range recs {
		id, ok := normalize.IdentityKey(rec)
		if !ok {
			recordsStored.WithLabelValues("log", "skipped").Inc()
			continue
		}
		inserted, err := l.logs.UpsertLog(rec)
		if err != nil {
			recordsStored.WithLabelValues("log", "error").Inc()
			l.logger.Warnw("Failed to store log", logger.FieldExecutionID, id, logger.FieldError, err)
			continue
		}
		if !inserted {
			recordsStored.WithLabelValues("log", "duplicate").Inc()
			continue
		}
		recordsStored.WithLabelValues("log", "stored").Inc()
		touched[id] = struct{}{}
	}

	if l.hook == nil {
		return
	}
	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		l.hook.ExecutionUpdated(ctx, id)
	}
}
