// Package pipeline drives a Job through RCA, approval mail, decision and
// remediation.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/logger"
	"github.com/teranos/rpawatch/mail"
	"github.com/teranos/rpawatch/rca"
	"github.com/teranos/rpawatch/records"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpawatch_pipeline_runs_total",
		Help: "Pipeline runs by result",
	}, []string{"result"})

	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpawatch_pipeline_decisions_total",
		Help: "Reply decisions by outcome",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rpawatch_pipeline_run_duration_seconds",
		Help:    "Duration of one pipeline run",
		Buckets: prometheus.DefBuckets,
	})
)

// JobStore is the part of jobs.Store the pipeline mutates
type JobStore interface {
	Get(id string) (*jobs.Job, error)
	MarkCompleted(id string) error
}

// Resolver attaches an RCA match to a Job
type Resolver interface {
	Resolve(ctx context.Context, job *jobs.Job) (rca.Match, error)
}

// Notifier sends the approval request of a Job
type Notifier interface {
	Notify(ctx context.Context, job *jobs.Job) (mail.Message, error)
}

// Remediator restarts a faulted execution
type Remediator interface {
	Restart(ctx context.Context, exec *records.Execution) error
}

// ExecutionGetter reads stored executions
type ExecutionGetter interface {
	Get(executionID string) (*records.Execution, error)
}

// CounterIncrementer bumps outcome counters on knowledge base entries
type CounterIncrementer interface {
	IncrementCounter(id string, c rca.Counter) error
}

// Auditor appends audit entries
type Auditor interface {
	Record(jobID, actor, message string) error
}

// Config holds orchestrator configuration
type Config struct {
	RunTimeout time.Duration // default 180s
}

// Deps are the collaborators of an Orchestrator
type Deps struct {
	Jobs       JobStore
	Executions ExecutionGetter
	Resolver   Resolver
	Notifier   Notifier
	Remediator Remediator
	Counters   CounterIncrementer
	Audit      Auditor
}

// Orchestrator runs at most one pipeline per Job at a time
type Orchestrator struct {
	deps   Deps
	cfg    Config
	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger
}

// NewOrchestrator creates an orchestrator whose background runs derive
// from ctx.
func NewOrchestrator(ctx context.Context, deps Deps, cfg Config, log *zap.SugaredLogger) *Orchestrator {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 180 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	runCtx, cancel := context.WithCancel(ctx)
	return &Orchestrator{deps: deps, cfg: cfg, ctx: runCtx, cancel: cancel, logger: log}
}

// Trigger starts processing jobID in the background. A run already in
// flight for the same Job absorbs the call.
func (o *Orchestrator) Trigger(jobID string) {
	if o.ctx.Err() != nil {
		return
	}
	ch := o.group.DoChan(jobID, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(o.ctx, o.cfg.RunTimeout)
		defer cancel()
		return nil, o.Process(ctx, jobID)
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		res := <-ch
		if res.Err != nil {
			o.logFailure(jobID, res.Err)
		}
	}()
}

// Close cancels in-flight runs and waits for them
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) logFailure(jobID string, err error) {
	if errors.IsMissingPrerequisite(err) {
		o.logger.Infow("Job waiting on prerequisite", logger.FieldJobID, jobID, logger.FieldError, err)
		return
	}
	o.logger.Warnw("Pipeline run failed", logger.FieldJobID, jobID, logger.FieldError, err)
}

// Process advances jobID as far as its current state allows
func (o *Orchestrator) Process(ctx context.Context, jobID string) (err error) {
	start := time.Now()
	defer func() {
		runDuration.Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			runsTotal.WithLabelValues("ok").Inc()
		case errors.IsMissingPrerequisite(err):
			runsTotal.WithLabelValues("waiting").Inc()
		default:
			runsTotal.WithLabelValues("error").Inc()
		}
	}()

	job, err := o.deps.Jobs.Get(jobID)
	if err != nil {
		return err
	}
	log := o.logger.With(logger.FieldJobID, job.ID, logger.FieldExecutionID, job.ExecutionID)

	switch job.Status {
	case jobs.StatusCompleted, jobs.StatusWaitingForReply:
		return nil
	case jobs.StatusEmailReceived:
		return o.decide(ctx, job, log)
	}

	if job.RCAID == "" {
		match, err := o.deps.Resolver.Resolve(ctx, job)
		if err != nil {
			return errors.Wrapf(err, "rca for job %s", job.ID)
		}
		log.Infow("RCA matched", logger.FieldRCAID, match.RCAID, "confidence", match.Confidence)
		o.audit(job.ID, jobs.ActorPipeline, fmt.Sprintf("matched %s with confidence %.2f", match.RCAID, match.Confidence))
	}

	if !job.MailSent {
		msg, err := o.deps.Notifier.Notify(ctx, job)
		if err != nil {
			return errors.Wrapf(err, "notify for job %s", job.ID)
		}
		log.Infow("Approval requested", logger.FieldRecipient, msg.To, logger.FieldToken, job.Token)
		o.audit(job.ID, jobs.ActorPipeline, "approval requested from "+msg.To)
		return nil
	}

	// reprocessed job that already holds a reply
	if job.MailReceivedText != "" {
		return o.decide(ctx, job, log)
	}
	return nil
}

// decide acts on the stored reply
func (o *Orchestrator) decide(ctx context.Context, job *jobs.Job, log *zap.SugaredLogger) error {
	if !IsApproval(job.MailReceivedText) {
		decisionsTotal.WithLabelValues("rejected").Inc()
		if err := o.deps.Jobs.MarkCompleted(job.ID); err != nil {
			return err
		}
		o.count(job.RCAID, rca.CounterHumanRejected)
		log.Infow("Remediation not approved, manual follow-up required")
		o.audit(job.ID, jobs.ActorPipeline, "reply did not approve remediation; manual follow-up required")
		return nil
	}

	decisionsTotal.WithLabelValues("approved").Inc()
	log.Infow("Remediation approved")
	if err := o.remediate(ctx, job, log); err != nil {
		return err
	}
	o.count(job.RCAID, rca.CounterHumanApproved)
	return nil
}

// Remediate restarts jobID's execution immediately, bypassing the reply.
// It shares the per-Job run slot with background processing.
func (o *Orchestrator) Remediate(ctx context.Context, jobID string) error {
	_, err, _ := o.group.Do(jobID, func() (interface{}, error) {
		job, err := o.deps.Jobs.Get(jobID)
		if err != nil {
			return nil, err
		}
		if job.IsCompleted() {
			return nil, errors.Wrapf(errors.ErrConflict, "job %s is already completed", jobID)
		}
		log := o.logger.With(logger.FieldJobID, job.ID, logger.FieldExecutionID, job.ExecutionID)
		return nil, o.remediate(ctx, job, log)
	})
	return err
}

func (o *Orchestrator) remediate(ctx context.Context, job *jobs.Job, log *zap.SugaredLogger) error {
	exec, err := o.deps.Executions.Get(job.ExecutionID)
	if err != nil {
		return errors.Wrapf(err, "execution for job %s", job.ID)
	}

	if err := o.deps.Remediator.Restart(logger.WithJobID(ctx, job.ID), exec); err != nil {
		o.count(job.RCAID, rca.CounterAutoActionFailure)
		o.audit(job.ID, jobs.ActorRemedy, "restart failed: "+err.Error())
		return errors.Wrapf(err, "restart for job %s", job.ID)
	}

	if err := o.deps.Jobs.MarkCompleted(job.ID); err != nil {
		return err
	}
	o.count(job.RCAID, rca.CounterAutoActionSuccess)
	log.Infow("Remediation completed", logger.FieldProcess, exec.Process, logger.FieldRobot, exec.Robot)
	o.audit(job.ID, jobs.ActorRemedy, fmt.Sprintf("restarted %s on %s", exec.Process, exec.Robot))
	return nil
}

func (o *Orchestrator) count(rcaID string, c rca.Counter) {
	if rcaID == "" || o.deps.Counters == nil {
		return
	}
	if err := o.deps.Counters.IncrementCounter(rcaID, c); err != nil {
		o.logger.Warnw("Failed to update rca counter",
			logger.FieldRCAID, rcaID,
			"counter", string(c),
			logger.FieldError, err)
	}
}

func (o *Orchestrator) audit(jobID, actor, msg string) {
	if o.deps.Audit == nil {
		return
	}
	if err := o.deps.Audit.Record(jobID, actor, msg); err != nil {
		o.logger.Warnw("Failed to record audit entry", logger.FieldJobID, jobID, logger.FieldError, err)
	}
}
