// Package notify sends the approval request for a job and stamps the
// correlation token that ties the reply back to it.
package notify

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/logger"
	"github.com/teranos/rpawatch/mail"
	"github.com/teranos/rpawatch/rca"
	"github.com/teranos/rpawatch/records"
)

// maxTokenAttempts bounds regeneration when a token collides with an open job
const maxTokenAttempts = 8

// JobMailer is the part of jobs.Store the notifier writes through
type JobMailer interface {
	TokenInUse(token string) (bool, error)
	MarkMailSent(id, text, token string) error
}

// ExecutionGetter reads stored executions
type ExecutionGetter interface {
	Get(executionID string) (*records.Execution, error)
}

// RCAGetter reads knowledge base entries
type RCAGetter interface {
	Get(id string) (*rca.Record, error)
}

// Config holds addressing and pacing settings
type Config struct {
	Subject        string
	DeveloperTo    string
	BusinessTo     string
	SendsPerMinute int
}

// Notifier composes, sends and records approval requests
type Notifier struct {
	jobs       JobMailer
	executions ExecutionGetter
	kb         RCAGetter
	drafter    Drafter
	fallback   Drafter
	sender     mail.Sender
	limiter    *rate.Limiter
	cfg        Config
	newToken   func() string
	logger     *zap.SugaredLogger
}

// NewNotifier creates a notifier. A nil drafter uses the static template only.
func NewNotifier(cfg Config, jobStore JobMailer, executions ExecutionGetter, kb RCAGetter, drafter Drafter, sender mail.Sender, log *zap.SugaredLogger) *Notifier {
	if cfg.Subject == "" {
		cfg.Subject = "RCA Bot Alert"
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	limit := rate.Inf
	if cfg.SendsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.SendsPerMinute))
	}

	fallback := StaticDrafter{Subject: cfg.Subject}
	if drafter == nil {
		drafter = fallback
	}

	return &Notifier{
		jobs:       jobStore,
		executions: executions,
		kb:         kb,
		drafter:    drafter,
		fallback:   fallback,
		sender:     sender,
		limiter:    rate.NewLimiter(limit, 1),
		cfg:        cfg,
		newToken:   mail.NewToken,
		logger:     log,
	}
}

// Notify drafts and sends the request for job, then records mail_sent,
// the sent text and the token and moves the job to WaitingForReply.
func (n *Notifier) Notify(ctx context.Context, job *jobs.Job) (mail.Message, error) {
	if job.MailSent {
		return mail.Message{}, errors.Wrapf(errors.ErrConflict, "mail already sent for job %s", job.ID)
	}

	exec, err := n.executions.Get(job.ExecutionID)
	if errors.IsNotFound(err) {
		return mail.Message{}, errors.NewMissingPrerequisite("execution %s not stored yet", job.ExecutionID)
	}
	if err != nil {
		return mail.Message{}, err
	}

	var rec *rca.Record
	if job.RCAID != "" {
		rec, err = n.kb.Get(job.RCAID)
		if err != nil && !errors.IsNotFound(err) {
			return mail.Message{}, err
		}
	}

	d := Draft{Job: job, Execution: exec, RCA: rec}
	content, err := n.drafter.Draft(ctx, d)
	if err != nil {
		n.logger.Warnw("Drafter failed, using template", logger.FieldJobID, job.ID, logger.FieldError, err)
		if content, err = n.fallback.Draft(ctx, d); err != nil {
			return mail.Message{}, err
		}
	}

	token, err := n.uniqueToken()
	if err != nil {
		return mail.Message{}, err
	}

	subject := strings.TrimSpace(content.Subject)
	if subject == "" {
		subject = n.cfg.Subject
	}
	msg := mail.Message{
		To:      n.recipient(rec),
		Subject: mail.TaggedSubject(subject, token),
		Body:    content.Body,
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return mail.Message{}, errors.Wrap(err, "mail pacing interrupted")
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return mail.Message{}, err
	}

	if err := n.jobs.MarkMailSent(job.ID, msg.Body, token); err != nil {
		return msg, err
	}
	job.MailSent = true
	job.MailSentText = msg.Body
	job.Token = token
	job.Status = jobs.StatusWaitingForReply

	n.logger.Infow("Approval requested",
		logger.FieldJobID, job.ID,
		logger.FieldExecutionID, job.ExecutionID,
		logger.FieldToken, token,
		logger.FieldRecipient, msg.To)
	return msg, nil
}

// SendDirect delivers an ad-hoc message to the developer address
func (n *Notifier) SendDirect(ctx context.Context, subject, body string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "mail pacing interrupted")
	}
	return n.sender.Send(ctx, mail.Message{To: n.cfg.DeveloperTo, Subject: subject, Body: body})
}

func (n *Notifier) recipient(rec *rca.Record) string {
	if rec.IsBusiness() && n.cfg.BusinessTo != "" {
		return n.cfg.BusinessTo
	}
	return n.cfg.DeveloperTo
}

func (n *Notifier) uniqueToken() (string, error) {
	for i := 0; i < maxTokenAttempts; i++ {
		token := n.newToken()
		inUse, err := n.jobs.TokenInUse(token)
		if err != nil {
			return "", err
		}
		if !inUse {
			return token, nil
		}
		n.logger.Debugw("Token collision, regenerating", logger.FieldToken, token)
	}
	return "", errors.Wrapf(errors.ErrConflict, "no free token after %d attempts", maxTokenAttempts)
}
