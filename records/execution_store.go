package records

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/normalize"
)

// ExecutionStore handles persistence of execution snapshots
type ExecutionStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewExecutionStore creates a new execution store
func NewExecutionStore(db *sql.DB, logger *zap.SugaredLogger) *ExecutionStore {
	return &ExecutionStore{db: db, logger: logger, now: time.Now}
}

// UpsertExecution stores rec if its execution id is new and refreshes
// last_seen on every call. First-seen descriptive fields are never
// overwritten; state and end_time follow the latest non-empty observation.
// Records without identity are discarded and report stored=false.
func (s *ExecutionStore) UpsertExecution(rec normalize.Record) (bool, error) {
	n, f, err := normalize.DecodeExecution(rec)
	if errors.IsMissingPrerequisite(err) {
		s.logger.Debugw("Skipping execution without identity", "error", err)
		return false, nil
	}
	if err != nil {
		s.logger.Warnw("Dropping malformed execution", "error", err)
		return false, nil
	}

	raw, err := json.Marshal(n)
	if err != nil {
		return false, errors.Wrapf(err, "failed to marshal execution %s", f.ExecutionID)
	}

	now := s.now().UTC()
	query := `
		INSERT INTO executions (
			execution_id, process, robot, entry_file, environment,
			state, state_lower, start_time, end_time, source, tenant,
			raw, first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET
			last_seen   = excluded.last_seen,
			state       = CASE WHEN excluded.state_lower <> '' THEN excluded.state ELSE executions.state END,
			state_lower = CASE WHEN excluded.state_lower <> '' THEN excluded.state_lower ELSE executions.state_lower END,
			end_time    = CASE WHEN excluded.end_time <> '' THEN excluded.end_time ELSE executions.end_time END
	`

	_, err = s.db.Exec(query,
		f.ExecutionID,
		f.Process,
		f.Robot,
		f.EntryFile,
		f.Environment,
		f.State,
		f.StateLower,
		f.StartTime,
		f.EndTime,
		f.Source,
		f.Tenant,
		string(raw),
		now,
		now,
	)
	if err != nil {
		return false, errors.Wrapf(err, "failed to upsert execution %s", f.ExecutionID)
	}

	return true, nil
}

// Get retrieves an execution by id
func (s *ExecutionStore) Get(executionID string) (*Execution, error) {
	query := `SELECT ` + executionSelectColumns() + ` FROM executions WHERE execution_id = ?`

	e, err := scanExecution(s.db.QueryRow(query, executionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("execution %s", executionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get execution")
	}
	return e, nil
}

// ListFaulted returns every execution whose state_lower is a fault state
func (s *ExecutionStore) ListFaulted() ([]*Execution, error) {
	states := normalize.FaultStates()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(states)), ", ")
	args := make([]interface{}, len(states))
	for i, st := range states {
		args[i] = st
	}

	query := `SELECT ` + executionSelectColumns() + `
		FROM executions
		WHERE state_lower IN (` + placeholders + `)
		ORDER BY first_seen`

	return s.list(query, args...)
}

// List returns the most recently observed executions
func (s *ExecutionStore) List(limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + executionSelectColumns() + ` FROM executions ORDER BY last_seen DESC LIMIT ?`
	return s.list(query, limit)
}

func (s *ExecutionStore) list(query string, args ...interface{}) ([]*Execution, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query executions")
	}
	defer rows.Close()

	var out []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate executions")
	}
	return out, nil
}
