// Package remedy restarts a faulted process on its robot through the
// platform's hub command protocol.
package remedy

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/feed"
	"github.com/teranos/rpawatch/logger"
	"github.com/teranos/rpawatch/normalize"
	"github.com/teranos/rpawatch/records"
)

var (
	// ErrProcessNotFound means the process list has no entry with the execution's process name
	ErrProcessNotFound = errors.New("process not found")
	// ErrRobotNotFound means the robot list has no entry with the execution's robot name
	ErrRobotNotFound = errors.New("robot not found")
)

// Invocation ids of the restart exchange
const (
	invocationProcesses = "25"
	invocationPackages  = "26"
	invocationRobots    = "27"
	invocationRun       = "28"
)

var restartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rpawatch_remedy_restarts_total",
	Help: "Restart attempts by result",
}, []string{"result"})

// Config bounds one restart
type Config struct {
	Timeout       time.Duration
	RobotPageSize int
}

// Executor opens a dedicated hub connection per restart
type Executor struct {
	auth   feed.Authenticator
	dialer feed.Dialer
	cfg    Config
	logger *zap.SugaredLogger
}

// NewExecutor creates an executor. Zero config values default to 60s and 10.
func NewExecutor(auth feed.Authenticator, dialer feed.Dialer, cfg Config, log *zap.SugaredLogger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RobotPageSize <= 0 {
		cfg.RobotPageSize = 10
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Executor{auth: auth, dialer: dialer, cfg: cfg, logger: log}
}

// restart tracks one exchange; reads happen on a single goroutine
type restart struct {
	exec      *records.Execution
	processID interface{}
	entryFile string
	robot     normalize.Record
	filesSeen bool
	sent      bool
}

// Restart runs the process of exec on the robot it faulted on. It returns
// once the platform acknowledges the run, or fails on timeout. It never retries.
func (e *Executor) Restart(ctx context.Context, exec *records.Execution) error {
	if exec == nil || exec.Process == "" || exec.Robot == "" {
		return errors.NewMissingPrerequisite("execution has no process or robot")
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	err := e.restart(ctx, exec)
	if err != nil {
		restartsTotal.WithLabelValues("failure").Inc()
		return err
	}
	restartsTotal.WithLabelValues("success").Inc()
	return nil
}

func (e *Executor) restart(ctx context.Context, exec *records.Execution) error {
	// job_id comes from ctx when the orchestrator attached one
	log := logger.FromContext(ctx, e.logger).With(
		logger.FieldExecutionID, exec.ExecutionID,
		logger.FieldProcess, exec.Process,
		logger.FieldRobot, exec.Robot)

	s, err := feed.Connect(ctx, e.auth, e.dialer)
	if err != nil {
		return errors.Wrap(err, "failed to connect for restart")
	}
	defer s.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()

	if err := s.Invoke(feed.TargetViewNoPageProcess, invocationProcesses); err != nil {
		return err
	}
	log.Debugw("Requested process list")

	r := &restart{exec: exec, entryFile: exec.EntryFile}
	for {
		frames, _, err := s.Read()
		if err != nil {
			if ctx.Err() != nil {
				return errors.Wrapf(ctx.Err(), "restart of %s timed out", exec.ExecutionID)
			}
			return errors.Wrap(err, "restart connection lost")
		}
		for _, f := range frames {
			finished, err := e.handle(s, r, f, log)
			if err != nil {
				return err
			}
			if finished {
				log.Infow("Process restarted")
				return nil
			}
		}
	}
}

// handle advances the exchange by one frame
func (e *Executor) handle(s *feed.Session, r *restart, f feed.Frame, log *zap.SugaredLogger) (bool, error) {
	if f.Type == feed.TypeCompletion && f.Error != "" {
		return false, errors.Newf("invocation %s failed: %s", f.InvocationID, f.Error)
	}

	switch {
	case f.Type == feed.TypeCompletion && f.InvocationID == invocationProcesses:
		procs, err := f.ResultRecords()
		if err != nil {
			return false, errors.Wrap(err, "bad process list")
		}
		id, ok := findByName(procs, "Name", r.exec.Process)
		if !ok {
			return false, errors.Wrapf(ErrProcessNotFound, "%q", r.exec.Process)
		}
		r.processID = id["Id"]
		log.Debugw("Process found", "process_id", r.processID)

		if err := s.Invoke(feed.TargetViewNoPageXamlPackageVersion, invocationPackages, r.processID, false); err != nil {
			return false, err
		}
		if err := s.Invoke(feed.TargetViewRobot, invocationRobots, 0, e.cfg.RobotPageSize, nil, r.processID); err != nil {
			return false, err
		}

	case f.Type == feed.TypeCompletion && f.InvocationID == invocationPackages:
		r.filesSeen = true
		if r.entryFile == "" {
			r.entryFile = firstFileName(f)
		}

	case f.Type == feed.TypeInvocation && f.Is(feed.TargetViewRobot) && r.processID != nil:
		robots, err := f.ArgumentRecords()
		if err != nil {
			return false, errors.Wrap(err, "bad robot list")
		}
		robot, ok := findByName(robots, "RobotName", r.exec.Robot)
		if !ok {
			return false, errors.Wrapf(ErrRobotNotFound, "%q", r.exec.Robot)
		}
		r.robot = robot

	case r.sent && f.Type == feed.TypeInvocation && f.Is(feed.TargetViewExecution):
		return true, nil

	case r.sent && f.Type == feed.TypeCompletion && f.InvocationID == invocationRun:
		return true, nil
	}

	if r.sent || r.processID == nil || r.robot == nil {
		return false, nil
	}
	if r.entryFile == "" {
		if r.filesSeen {
			return false, errors.NewMissingPrerequisite("no entry file for process %q", r.exec.Process)
		}
		return false, nil
	}

	err := s.Invoke(feed.TargetRunProcessExecution, invocationRun,
		r.processID, r.entryFile, false, []interface{}{r.robot}, []interface{}{}, 0, e.cfg.RobotPageSize, nil)
	if err != nil {
		return false, err
	}
	r.sent = true
	log.Infow("Run requested", "entry_file", r.entryFile)
	return false, nil
}

// findByName returns the first record whose key equals want
func findByName(recs []normalize.Record, key, want string) (normalize.Record, bool) {
	for _, rec := range recs {
		if v, ok := rec[key].(string); ok && strings.TrimSpace(v) == want {
			return rec, true
		}
	}
	return nil, false
}

// firstFileName reads result.listOfFiles[0].Name
func firstFileName(f feed.Frame) string {
	var pkg struct {
		ListOfFiles []struct {
			Name string `json:"Name"`
		} `json:"listOfFiles"`
	}
	if err := json.Unmarshal(f.Result, &pkg); err != nil || len(pkg.ListOfFiles) == 0 {
		return ""
	}
	return pkg.ListOfFiles[0].Name
}
