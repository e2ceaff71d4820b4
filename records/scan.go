package records

import (
	"strings"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// executionSelectColumns returns the column list matching scanExecution.
func executionSelectColumns() string {
	return strings.Join([]string{
		"execution_id", "process", "robot", "entry_file", "environment",
		"state", "state_lower", "start_time", "end_time", "source", "tenant",
		"raw", "first_seen", "last_seen",
	}, ", ")
}

func scanExecution(row rowScanner) (*Execution, error) {
	var e Execution
	var raw string
	err := row.Scan(
		&e.ExecutionID,
		&e.Process,
		&e.Robot,
		&e.EntryFile,
		&e.Environment,
		&e.State,
		&e.StateLower,
		&e.StartTime,
		&e.EndTime,
		&e.Source,
		&e.Tenant,
		&raw,
		&e.FirstSeen,
		&e.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	e.Raw = []byte(raw)
	return &e, nil
}

// logSelectColumns returns the column list matching scanLog.
func logSelectColumns() string {
	return strings.Join([]string{
		"execution_id", "log_id", "time", "level", "message",
		"machine_name", "user_name", "process_name", "date_time",
		"raw", "created_at",
	}, ", ")
}

func scanLog(row rowScanner) (*Log, error) {
	var l Log
	var raw string
	err := row.Scan(
		&l.ExecutionID,
		&l.LogID,
		&l.Time,
		&l.Level,
		&l.Message,
		&l.MachineName,
		&l.UserName,
		&l.ProcessName,
		&l.DateTime,
		&raw,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Raw = []byte(raw)
	return &l, nil
}
