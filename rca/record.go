// Package rca matches faulted executions against the root-cause knowledge base.
package rca

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Record is one knowledge base entry describing a known failure
type Record struct {
	RCAID              string    `json:"rca_id" yaml:"rca_id" validate:"required,max=128"`
	ProcessName        string    `json:"process_name" yaml:"process_name"`
	Robot              string    `json:"robot" yaml:"robot"`
	State              string    `json:"state" yaml:"state"`
	TimestampFirstSeen string    `json:"timestamp_first_seen" yaml:"timestamp_first_seen"`
	CreatedBy          string    `json:"created_by" yaml:"created_by"`
	ExceptionType      string    `json:"exception_type" yaml:"exception_type"`
	ExceptionMessage   string    `json:"exception_message" yaml:"exception_message"`
	ExceptionSignature string    `json:"exception_signature" yaml:"exception_signature"`
	RootCause          string    `json:"root_cause" yaml:"root_cause"`
	BusinessImpact     string    `json:"business_impact" yaml:"business_impact"`
	SolutionType       string    `json:"solution_type" yaml:"solution_type"`
	SuggestedAction    string    `json:"suggested_action" yaml:"suggested_action"`
	ActionParameters   string    `json:"action_parameters" yaml:"action_parameters"`
	BaseConfidence     float64   `json:"base_confidence" yaml:"base_confidence" validate:"gte=0,lte=1"`
	TotalOccurrences   int       `json:"total_occurrences" yaml:"total_occurrences"`
	AutoActionSuccess  int       `json:"auto_action_success" yaml:"auto_action_success"`
	AutoActionFailure  int       `json:"auto_action_failure" yaml:"auto_action_failure"`
	HumanApproved      int       `json:"human_approved" yaml:"human_approved"`
	HumanRejected      int       `json:"human_rejected" yaml:"human_rejected"`
	UpdatedAt          time.Time `json:"updated_at" yaml:"-"`
}

// SolutionTypeBusiness routes the approval request to the business owner
const SolutionTypeBusiness = "Business"

// IsBusiness reports whether the remedy needs a business decision
func (r *Record) IsBusiness() bool {
	return r != nil && r.SolutionType == SolutionTypeBusiness
}

// Validate checks the record before it is stored
func (r *Record) Validate() error {
	return validate.Struct(r)
}

// Counter names an outcome counter on a knowledge base entry
type Counter string

const (
	CounterTotalOccurrences  Counter = "total_occurrences"
	CounterAutoActionSuccess Counter = "auto_action_success"
	CounterAutoActionFailure Counter = "auto_action_failure"
	CounterHumanApproved     Counter = "human_approved"
	CounterHumanRejected     Counter = "human_rejected"
)

func (c Counter) valid() bool {
	switch c {
	case CounterTotalOccurrences, CounterAutoActionSuccess, CounterAutoActionFailure,
		CounterHumanApproved, CounterHumanRejected:
		return true
	}
	return false
}

// Match is the classifier's verdict for one execution
type Match struct {
	RCAID      string  `json:"rca_id"`
	Confidence float64 `json:"confidence"`
	RootCause  string  `json:"root_cause"`
	Solution   string  `json:"solution"`
	Action     string  `json:"action"`
}
