package jobs

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/rpawatch/db"
	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/logger"
)

// Store handles persistence of jobs
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
	newID  func() string
}

// NewStore creates a new job store
func NewStore(database *sql.DB, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{db: database, logger: log, now: time.Now, newID: uuid.NewString}
}

// Ensure returns the Job for executionID, creating it in status Started if
// none exists. created is true only for the caller whose insert won; a
// concurrent loser re-reads the winner's row.
func (s *Store) Ensure(executionID string) (*Job, bool, error) {
	if executionID == "" {
		return nil, false, errors.Wrap(errors.ErrInvalidRequest, "execution id is required")
	}

	existing, err := s.GetByExecution(executionID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.IsNotFound(err) {
		return nil, false, err
	}

	now := s.now().UTC()
	job := &Job{
		ID:          s.newID(),
		ExecutionID: executionID,
		JobType:     JobTypeRetryFaulted,
		Status:      StatusStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := `
		INSERT INTO jobs (
			id, execution_id, job_type, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query, job.ID, job.ExecutionID, job.JobType, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			s.logger.Debugw("Job already created by concurrent writer", logger.FieldExecutionID, executionID)
			winner, getErr := s.GetByExecution(executionID)
			if getErr != nil {
				return nil, false, getErr
			}
			return winner, false, nil
		}
		return nil, false, errors.Wrapf(err, "failed to create job for execution %s", executionID)
	}

	s.logger.Infow("Job created",
		logger.FieldJobID, job.ID,
		logger.FieldExecutionID, executionID)
	return job, true, nil
}

// Get retrieves a job by ID
func (s *Store) Get(id string) (*Job, error) {
	return s.getOne(`WHERE id = ?`, id, "job %s")
}

// GetByExecution retrieves the job for an execution
func (s *Store) GetByExecution(executionID string) (*Job, error) {
	return s.getOne(`WHERE execution_id = ?`, executionID, "job for execution %s")
}

// GetByToken retrieves the job holding a correlation token
func (s *Store) GetByToken(token string) (*Job, error) {
	return s.getOne(`WHERE token = ? ORDER BY updated_at DESC LIMIT 1`, token, "job with token %s")
}

func (s *Store) getOne(where string, arg string, what string) (*Job, error) {
	query := `SELECT ` + jobSelectColumns() + ` FROM jobs ` + where
	j, err := scanJob(s.db.QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError(what, arg)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return j, nil
}

// List returns jobs, newest first, optionally filtered by status
func (s *Store) List(status *Status, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	base := `SELECT ` + jobSelectColumns() + ` FROM jobs`
	if status != nil {
		rows, err = s.db.Query(base+` WHERE status = ? ORDER BY created_at DESC LIMIT ?`, *status, limit)
	} else {
		rows, err = s.db.Query(base+` ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	out, err := scanJobs(rows)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan jobs")
	}
	return out, nil
}

// SetRCA records the RCA match of an open job
func (s *Store) SetRCA(id, rcaID string, confidence float64) error {
	query := `
		UPDATE jobs
		SET rca_id = ?, rca_confidence = ?, updated_at = ?
		WHERE id = ? AND status <> ?
	`
	res, err := s.db.Exec(query, rcaID, confidence, s.now().UTC(), id, StatusCompleted)
	if err != nil {
		return errors.Wrapf(err, "failed to set rca for job %s", id)
	}
	return s.checkAffected(res, id, "set rca")
}

// MarkMailSent stamps the correlation token and sent text and moves the
// job to WaitingForReply in one statement.
func (s *Store) MarkMailSent(id, text, token string) error {
	return s.transition(id, StatusWaitingForReply,
		`mail_sent = 1, mail_sent_text = ?, token = ?`, text, token)
}

// RecordReply stores body on the job awaiting a reply with token and moves
// it to EmailReceived. Returns ErrNotFound when no job is waiting on token.
func (s *Store) RecordReply(token, body string) (*Job, error) {
	if token == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "token is required")
	}

	var id string
	err := s.db.QueryRow(
		`SELECT id FROM jobs WHERE token = ? AND status = ? ORDER BY updated_at DESC LIMIT 1`,
		token, StatusWaitingForReply,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job awaiting reply with token %s", token)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up token")
	}

	query := `
		UPDATE jobs
		SET mail_received_text = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	res, err := s.db.Exec(query, body, StatusEmailReceived, s.now().UTC(), id, StatusWaitingForReply)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to record reply for job %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		// another watcher recorded it between lookup and update
		return nil, errors.NewNotFoundError("job awaiting reply with token %s", token)
	}

	return s.Get(id)
}

// MarkCompleted moves the job to its terminal status
func (s *Store) MarkCompleted(id string) error {
	return s.transition(id, StatusCompleted, "")
}

// UpdateStatus moves the job to status if the state machine allows it
func (s *Store) UpdateStatus(id string, status Status) error {
	if !IsValidStatus(string(status)) {
		return errors.Wrapf(errors.ErrInvalidRequest, "unknown status %q", status)
	}
	return s.transition(id, status, "")
}

// TokenInUse reports whether an open job already holds token
func (s *Store) TokenInUse(token string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE token = ? AND status <> ?`, token, StatusCompleted).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "failed to check token")
	}
	return n > 0, nil
}

// Update describes a partial update. Nil fields are left unchanged.
type Update struct {
	RCAID            *string `json:"rca_id,omitempty"`
	Status           *Status `json:"status,omitempty"`
	MailSent         *bool   `json:"mail_sent,omitempty"`
	MailSentText     *string `json:"mail_sent_text,omitempty"`
	MailReceivedText *string `json:"mail_received_text,omitempty"`
}

// Apply performs a partial update guarded by the job's current status.
// A concurrent status change makes the update fail with ErrConflict.
func (s *Store) Apply(id string, u Update) (*Job, error) {
	current, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	next := *current
	if u.RCAID != nil {
		next.RCAID = *u.RCAID
	}
	if u.MailSent != nil {
		next.MailSent = *u.MailSent
	}
	if u.MailSentText != nil {
		next.MailSentText = *u.MailSentText
	}
	if u.MailReceivedText != nil {
		next.MailReceivedText = *u.MailReceivedText
	}
	if u.Status != nil && *u.Status != current.Status {
		if !IsValidStatus(string(*u.Status)) {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "unknown status %q", *u.Status)
		}
		if !CanTransition(current.Status, *u.Status) {
			return nil, errors.Wrapf(errors.ErrInvalidTransition, "%s -> %s", current.Status, *u.Status)
		}
		next.Status = *u.Status
	}
	next.UpdatedAt = s.now().UTC()

	query := `
		UPDATE jobs
		SET rca_id = ?, mail_sent = ?, mail_sent_text = ?, mail_received_text = ?,
		    status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	res, err := s.db.Exec(query,
		nullString(next.RCAID),
		next.MailSent,
		next.MailSentText,
		next.MailReceivedText,
		next.Status,
		next.UpdatedAt,
		id,
		current.Status,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update job %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return nil, errors.Wrapf(errors.ErrConflict, "job %s changed concurrently", id)
	}
	return &next, nil
}

// transition moves job id to status to, guarded by the statuses allowed to
// reach it. set holds optional extra assignments whose values prefix args.
func (s *Store) transition(id string, to Status, set string, args ...interface{}) error {
	from := sourcesFor(to)

	assignments := `status = ?, updated_at = ?`
	if set != "" {
		assignments = set + `, ` + assignments
	}
	query := `UPDATE jobs SET ` + assignments + ` WHERE id = ? AND status IN (` + placeholders(len(from)) + `)`

	all := append([]interface{}{}, args...)
	all = append(all, to, s.now().UTC(), id)
	all = append(all, statusArgs(from)...)

	res, err := s.db.Exec(query, all...)
	if err != nil {
		return errors.Wrapf(err, "failed to move job %s to %s", id, to)
	}
	if err := s.checkAffected(res, id, "move to "+string(to)); err != nil {
		return err
	}

	s.logger.Debugw("Job transitioned", logger.FieldJobID, id, logger.FieldStatus, to)
	return nil
}

// checkAffected turns a zero-row update into ErrNotFound or ErrInvalidTransition.
func (s *Store) checkAffected(res sql.Result, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n > 0 {
		return nil
	}

	current, err := s.Get(id)
	if err != nil {
		return err
	}
	return errors.Wrapf(errors.ErrInvalidTransition, "cannot %s job %s in status %s", op, id, current.Status)
}
