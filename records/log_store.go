package records

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/normalize"
)

// LogStore handles persistence of execution log lines
type LogStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
	newID  func() string
}

// NewLogStore creates a new log store
func NewLogStore(db *sql.DB, logger *zap.SugaredLogger) *LogStore {
	return &LogStore{db: db, logger: logger, now: time.Now, newID: uuid.NewString}
}

// UpsertLog stores rec under (executionid, logid). A log id is taken from
// logid, log_id or id; only when none is present is one generated.
// Stored logs are immutable, so a repeated delivery reports inserted=false.
// Records without execution id are discarded silently.
func (s *LogStore) UpsertLog(rec normalize.Record) (bool, error) {
	n, f, err := normalize.DecodeLog(rec)
	if errors.IsMissingPrerequisite(err) {
		s.logger.Debugw("Skipping log without execution id", "error", err)
		return false, nil
	}
	if err != nil {
		s.logger.Warnw("Dropping malformed log", "error", err)
		return false, nil
	}

	if f.LogID == "" {
		f.LogID = s.newID()
	}
	n[normalize.LogID.Canonical] = f.LogID

	raw, err := json.Marshal(n)
	if err != nil {
		return false, errors.Wrapf(err, "failed to marshal log %s/%s", f.ExecutionID, f.LogID)
	}

	query := `
		INSERT INTO execution_logs (
			execution_id, log_id, time, level, message,
			machine_name, user_name, process_name, date_time,
			raw, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id, log_id) DO NOTHING
	`

	res, err := s.db.Exec(query,
		f.ExecutionID,
		f.LogID,
		f.Time,
		f.Level,
		f.Message,
		f.MachineName,
		f.UserName,
		f.ProcessName,
		f.DateTime,
		string(raw),
		s.now().UTC(),
	)
	if err != nil {
		return false, errors.Wrapf(err, "failed to upsert log %s/%s", f.ExecutionID, f.LogID)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read rows affected")
	}
	return affected > 0, nil
}

// ListByExecution returns all logs of an execution in arrival order
func (s *LogStore) ListByExecution(executionID string) ([]*Log, error) {
	query := `SELECT ` + logSelectColumns() + `
		FROM execution_logs
		WHERE execution_id = ?
		ORDER BY created_at, log_id`

	rows, err := s.db.Query(query, executionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query logs")
	}
	defer rows.Close()

	var out []*Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan log")
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate logs")
	}
	return out, nil
}

// Count returns how many logs are stored for an execution
func (s *LogStore) Count(executionID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM execution_logs WHERE execution_id = ?`, executionID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count logs")
	}
	return n, nil
}
