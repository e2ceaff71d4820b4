package normalize

import (
	"github.com/go-playground/validator/v10"

	"github.com/teranos/rpawatch/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ExecutionFields is the typed view of a normalized execution record.
type ExecutionFields struct {
	ExecutionID string `validate:"required"`
	Process     string
	Robot       string
	EntryFile   string
	Environment string
	State       string
	StateLower  string
	StartTime   string
	EndTime     string
	Source      string
	Tenant      string
}

// LogFields is the typed view of a normalized log record. LogID may be
// empty; the log store generates one.
type LogFields struct {
	ExecutionID string `validate:"required"`
	LogID       string
	Time        string
	Level       string
	Message     string
	MachineName string
	UserName    string
	ProcessName string
	DateTime    string
}

// DecodeExecution normalizes rec and maps it onto ExecutionFields.
// A record without identity fails with ErrMissingPrerequisite; any other
// validation failure is ErrMalformedInput.
func DecodeExecution(rec Record) (Record, ExecutionFields, error) {
	n := Normalize(rec)
	f := ExecutionFields{
		ExecutionID: n.ExecutionIDOf(),
		Process:     get(n, Process),
		Robot:       get(n, Robot),
		EntryFile:   get(n, EntryFile),
		Environment: get(n, Environment),
		State:       get(n, State),
		StateLower:  n.StateLower(),
		StartTime:   get(n, StartTime),
		EndTime:     get(n, EndTime),
		Source:      get(n, Source),
		Tenant:      get(n, Tenant),
	}
	if err := validate.Struct(f); err != nil {
		return n, f, validationError(err)
	}
	return n, f, nil
}

// DecodeLog normalizes rec and maps it onto LogFields.
func DecodeLog(rec Record) (Record, LogFields, error) {
	n := Normalize(rec)
	f := LogFields{
		ExecutionID: n.ExecutionIDOf(),
		LogID:       get(n, LogID),
		Time:        get(n, LogTime),
		Level:       get(n, Level),
		Message:     get(n, Message),
		MachineName: get(n, MachineName),
		UserName:    get(n, UserName),
		ProcessName: get(n, ProcessName),
		DateTime:    get(n, DateTime),
	}
	if err := validate.Struct(f); err != nil {
		return n, f, validationError(err)
	}
	return n, f, nil
}

// validationError classifies a validator failure. Only a missing identity
// means the record has nothing to attach to.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "ExecutionID" && fe.Tag() == "required" {
				return errors.Wrap(errors.ErrMissingPrerequisite, err.Error())
			}
		}
	}
	return errors.Wrap(errors.ErrMalformedInput, err.Error())
}

func get(rec Record, f FieldSpec) string {
	s, _ := f.String(rec)
	return s
}
