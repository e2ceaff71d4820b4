package jobs

import (
	"database/sql"
	"time"

	"github.com/teranos/rpawatch/errors"
)

// Actors recorded in the audit log
const (
	ActorScanner   = "scanner"
	ActorPipeline  = "pipeline"
	ActorRemedy    = "remedy"
	ActorOperator  = "operator"
	ActorAssistant = "assistant"
)

// AuditEntry is one append-only record of a significant job transition
type AuditEntry struct {
	ID        int64     `json:"id"`
	JobType   string    `json:"job_type"`
	JobID     string    `json:"job_id"`
	Actor     string    `json:"actor"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditStore handles persistence of audit entries
type AuditStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuditStore creates a new audit store
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db, now: time.Now}
}

// Append stores e and returns it with ID and timestamp filled in
func (s *AuditStore) Append(e AuditEntry) (*AuditEntry, error) {
	if e.JobID == "" || e.Actor == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "audit entry needs job_id and actor")
	}
	if e.JobType == "" {
		e.JobType = JobTypeRetryFaulted
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}

	res, err := s.db.Exec(
		`INSERT INTO audit_logs (job_type, job_id, actor, message, timestamp) VALUES (?, ?, ?, ?, ?)`,
		e.JobType, e.JobID, e.Actor, e.Message, e.Timestamp,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to append audit entry for job %s", e.JobID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read audit entry id")
	}
	e.ID = id
	return &e, nil
}

// Record is a shorthand for Append with the default job type
func (s *AuditStore) Record(jobID, actor, message string) error {
	_, err := s.Append(AuditEntry{JobID: jobID, Actor: actor, Message: message})
	return err
}

// List returns audit entries oldest first, optionally for one job
func (s *AuditStore) List(jobID string, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	base := `SELECT id, job_type, job_id, actor, message, timestamp FROM audit_logs`
	if jobID != "" {
		rows, err = s.db.Query(base+` WHERE job_id = ? ORDER BY id LIMIT ?`, jobID, limit)
	} else {
		rows, err = s.db.Query(base+` ORDER BY id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries")
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.JobType, &e.JobID, &e.Actor, &e.Message, &e.Timestamp); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit entry")
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate audit entries")
	}
	return out, nil
}
