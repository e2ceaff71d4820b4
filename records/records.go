// Package records persists execution and log snapshots from the RPA feed.
package records

import (
	"encoding/json"
	"time"
)

// Execution is one run of an automated process, keyed by ExecutionID.
type Execution struct {
	ExecutionID string          `json:"execution_id"`
	Process     string          `json:"process"`
	Robot       string          `json:"robot"`
	EntryFile   string          `json:"entry_file"`
	Environment string          `json:"environment"`
	State       string          `json:"state"`
	StateLower  string          `json:"state_lower"`
	StartTime   string          `json:"start_time"`
	EndTime     string          `json:"end_time"`
	Source      string          `json:"source"`
	Tenant      string          `json:"tenant"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	FirstSeen   time.Time       `json:"first_seen"`
	LastSeen    time.Time       `json:"last_seen"`
}

// Log is one log line of an execution, keyed by (ExecutionID, LogID).
type Log struct {
	ExecutionID string          `json:"execution_id"`
	LogID       string          `json:"log_id"`
	Time        string          `json:"time"`
	Level       string          `json:"level"`
	Message     string          `json:"message"`
	MachineName string          `json:"machine_name"`
	UserName    string          `json:"user_name"`
	ProcessName string          `json:"process_name"`
	DateTime    string          `json:"date_time"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
