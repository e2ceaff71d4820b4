package rca

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/logger"
	"github.com/teranos/rpawatch/records"
)

// Classifier picks the knowledge base entry that best explains a failure
type Classifier interface {
	Classify(ctx context.Context, exec *records.Execution, logs []*records.Log, kb []*Record) (Match, error)
}

// ExecutionGetter is the read side of records.ExecutionStore used here
type ExecutionGetter interface {
	Get(executionID string) (*records.Execution, error)
}

// LogLister is the read side of records.LogStore used here
type LogLister interface {
	ListByExecution(executionID string) ([]*records.Log, error)
}

// MatchRecorder persists the match on the job
type MatchRecorder interface {
	SetRCA(jobID, rcaID string, confidence float64) error
}

// Resolver attaches an RCA match to a job
type Resolver struct {
	executions ExecutionGetter
	logs       LogLister
	kb         *Store
	classifier Classifier
	jobs       MatchRecorder
	logger     *zap.SugaredLogger
}

// NewResolver creates a resolver
func NewResolver(executions ExecutionGetter, logs LogLister, kb *Store, classifier Classifier, jobStore MatchRecorder, log *zap.SugaredLogger) *Resolver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Resolver{
		executions: executions,
		logs:       logs,
		kb:         kb,
		classifier: classifier,
		jobs:       jobStore,
		logger:     log,
	}
}

// Resolve classifies the job's execution and records rca_id and confidence.
// A missing execution or an execution without logs yields
// ErrMissingPrerequisite and leaves the job untouched.
func (r *Resolver) Resolve(ctx context.Context, job *jobs.Job) (Match, error) {
	exec, err := r.executions.Get(job.ExecutionID)
	if errors.IsNotFound(err) {
		return Match{}, errors.NewMissingPrerequisite("execution %s not stored yet", job.ExecutionID)
	}
	if err != nil {
		return Match{}, err
	}

	logs, err := r.logs.ListByExecution(job.ExecutionID)
	if err != nil {
		return Match{}, err
	}
	if len(logs) == 0 {
		return Match{}, errors.NewMissingPrerequisite("no logs for execution %s", job.ExecutionID)
	}

	kb, err := r.kb.List()
	if err != nil {
		return Match{}, err
	}

	match, err := r.classifier.Classify(ctx, exec, logs, kb)
	if err != nil {
		return Match{}, errors.Wrapf(err, "failed to classify execution %s", job.ExecutionID)
	}
	if match.RCAID == "" {
		return Match{}, errors.Wrapf(errors.ErrMalformedInput, "classifier returned no rca id for execution %s", job.ExecutionID)
	}

	if err := r.jobs.SetRCA(job.ID, match.RCAID, match.Confidence); err != nil {
		return Match{}, err
	}
	job.RCAID = match.RCAID
	confidence := match.Confidence
	job.RCAConfidence = &confidence

	if err := r.kb.IncrementCounter(match.RCAID, CounterTotalOccurrences); err != nil {
		// the classifier may name an id outside the stored knowledge base
		r.logger.Warnw("Could not count rca occurrence", logger.FieldRCAID, match.RCAID, logger.FieldError, err)
	}

	r.logger.Infow("RCA resolved",
		logger.FieldJobID, job.ID,
		logger.FieldExecutionID, job.ExecutionID,
		logger.FieldRCAID, match.RCAID,
		"confidence", match.Confidence)
	return match, nil
}
