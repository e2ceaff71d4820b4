// Package jobs holds the per-execution Job state machine.
//
// One Job exists per faulted execution. Every mutation is a single
// update-with-filter statement, so a transition the state machine forbids
// changes zero rows instead of racing a concurrent writer.
package jobs

import (
	"time"
)

// Status is the lifecycle position of a Job
type Status string

const (
	StatusNotStarted      Status = "NotStarted"
	StatusStarted         Status = "Started"
	StatusWaitingForReply Status = "WaitingForReply"
	StatusEmailReceived   Status = "EmailReceived"
	StatusCompleted       Status = "Completed"

	// StatusProcessing is the name operators use for EmailReceived
	StatusProcessing = StatusEmailReceived
)

// JobTypeRetryFaulted is the only job type the pipeline creates
const JobTypeRetryFaulted = "RetryFaulted"

var order = map[Status]int{
	StatusNotStarted:      0,
	StatusStarted:         1,
	StatusWaitingForReply: 2,
	StatusEmailReceived:   3,
	StatusCompleted:       4,
}

// AllStatuses returns the statuses in lifecycle order
func AllStatuses() []Status {
	return []Status{StatusNotStarted, StatusStarted, StatusWaitingForReply, StatusEmailReceived, StatusCompleted}
}

// IsValidStatus returns true if s names a known status
func IsValidStatus(s string) bool {
	_, ok := order[Status(s)]
	return ok
}

// CanTransition reports whether a Job may move from one status to another.
// Moves go forward only, with the single exception EmailReceived -> Started
// used to reprocess a job whose remediation must be redone.
func CanTransition(from, to Status) bool {
	f, ok := order[from]
	if !ok {
		return false
	}
	t, ok := order[to]
	if !ok {
		return false
	}
	if from == StatusEmailReceived && to == StatusStarted {
		return true
	}
	return t > f
}

// sourcesFor lists every status a Job may leave to reach to.
func sourcesFor(to Status) []Status {
	var out []Status
	for _, s := range AllStatuses() {
		if CanTransition(s, to) {
			out = append(out, s)
		}
	}
	return out
}

// Job tracks the remediation of one faulted execution
type Job struct {
	ID               string    `json:"id"`
	ExecutionID      string    `json:"execution_id"`
	JobType          string    `json:"job_type"`
	RCAID            string    `json:"rca_id,omitempty"`
	RCAConfidence    *float64  `json:"rca_confidence,omitempty"`
	Token            string    `json:"token,omitempty"`
	MailSent         bool      `json:"mail_sent"`
	MailSentText     string    `json:"mail_sent_text,omitempty"`
	MailReceivedText string    `json:"mail_received_text,omitempty"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsCompleted reports whether the Job reached its terminal status
func (j *Job) IsCompleted() bool {
	return j.Status == StatusCompleted
}

// NeedsProcessing decides whether the scanner should trigger the pipeline
// for j this cycle. Completed jobs are never reopened.
func NeedsProcessing(j *Job, created bool) bool {
	if j == nil || j.IsCompleted() {
		return false
	}
	return created || j.RCAID == "" || !j.MailSent || j.MailReceivedText != ""
}
