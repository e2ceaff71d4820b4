package rca

import (
	"database/sql"
	"strings"
	"time"

	"github.com/teranos/rpawatch/errors"
)

// Store handles persistence of knowledge base entries
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new RCA store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

var recordColumns = []string{
	"rca_id", "process_name", "robot", "state", "timestamp_first_seen", "created_by",
	"exception_type", "exception_message", "exception_signature", "root_cause",
	"business_impact", "solution_type", "suggested_action", "action_parameters",
	"base_confidence", "total_occurrences", "auto_action_success", "auto_action_failure",
	"human_approved", "human_rejected", "updated_at",
}

func recordArgs(r *Record) []interface{} {
	return []interface{}{
		r.RCAID, r.ProcessName, r.Robot, r.State, r.TimestampFirstSeen, r.CreatedBy,
		r.ExceptionType, r.ExceptionMessage, r.ExceptionSignature, r.RootCause,
		r.BusinessImpact, r.SolutionType, r.SuggestedAction, r.ActionParameters,
		r.BaseConfidence, r.TotalOccurrences, r.AutoActionSuccess, r.AutoActionFailure,
		r.HumanApproved, r.HumanRejected, r.UpdatedAt,
	}
}

func scanRecord(row interface{ Scan(...interface{}) error }) (*Record, error) {
	var r Record
	err := row.Scan(
		&r.RCAID, &r.ProcessName, &r.Robot, &r.State, &r.TimestampFirstSeen, &r.CreatedBy,
		&r.ExceptionType, &r.ExceptionMessage, &r.ExceptionSignature, &r.RootCause,
		&r.BusinessImpact, &r.SolutionType, &r.SuggestedAction, &r.ActionParameters,
		&r.BaseConfidence, &r.TotalOccurrences, &r.AutoActionSuccess, &r.AutoActionFailure,
		&r.HumanApproved, &r.HumanRejected, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Upsert inserts r or replaces the descriptive fields of an existing entry.
// Outcome counters of an existing entry are kept.
func (s *Store) Upsert(r *Record) error {
	if err := r.Validate(); err != nil {
		return errors.Wrap(errors.ErrInvalidRequest, err.Error())
	}
	r.UpdatedAt = s.now().UTC()

	var updates []string
	for _, c := range recordColumns[1:] {
		if strings.HasPrefix(c, "total_") || strings.HasPrefix(c, "auto_") || strings.HasPrefix(c, "human_") {
			continue
		}
		updates = append(updates, c+" = excluded."+c)
	}

	query := `INSERT INTO rca_records (` + strings.Join(recordColumns, ", ") + `)
		VALUES (` + strings.TrimSuffix(strings.Repeat("?, ", len(recordColumns)), ", ") + `)
		ON CONFLICT(rca_id) DO UPDATE SET ` + strings.Join(updates, ", ")

	if _, err := s.db.Exec(query, recordArgs(r)...); err != nil {
		return errors.Wrapf(err, "failed to upsert rca %s", r.RCAID)
	}
	return nil
}

// Get retrieves an entry by RCA id
func (s *Store) Get(id string) (*Record, error) {
	query := `SELECT ` + strings.Join(recordColumns, ", ") + ` FROM rca_records WHERE rca_id = ?`
	r, err := scanRecord(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("rca %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rca")
	}
	return r, nil
}

// List returns the whole knowledge base ordered by id
func (s *Store) List() ([]*Record, error) {
	rows, err := s.db.Query(`SELECT ` + strings.Join(recordColumns, ", ") + ` FROM rca_records ORDER BY rca_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list rca records")
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan rca record")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate rca records")
	}
	return out, nil
}

// IncrementCounter adds one to an outcome counter of entry id
func (s *Store) IncrementCounter(id string, c Counter) error {
	if !c.valid() {
		return errors.Wrapf(errors.ErrInvalidRequest, "unknown counter %q", c)
	}

	// c is whitelisted above
	query := `UPDATE rca_records SET ` + string(c) + ` = ` + string(c) + ` + 1, updated_at = ? WHERE rca_id = ?`
	res, err := s.db.Exec(query, s.now().UTC(), id)
	if err != nil {
		return errors.Wrapf(err, "failed to increment %s on rca %s", c, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return errors.NewNotFoundError("rca %s", id)
	}
	return nil
}
