package jobs

import (
	"database/sql"
	"strings"
)

// jobScanArgs holds the nullable columns of a job row
type jobScanArgs struct {
	RCAID         sql.NullString
	RCAConfidence sql.NullFloat64
	Token         sql.NullString
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// jobSelectColumns returns the columns in the order scanJob expects
func jobSelectColumns() string {
	return strings.Join([]string{
		"id", "execution_id", "job_type", "rca_id", "rca_confidence", "token",
		"mail_sent", "mail_sent_text", "mail_received_text", "status",
		"created_at", "updated_at",
	}, ", ")
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var args jobScanArgs
	err := row.Scan(
		&j.ID,
		&j.ExecutionID,
		&j.JobType,
		&args.RCAID,
		&args.RCAConfidence,
		&args.Token,
		&j.MailSent,
		&j.MailSentText,
		&j.MailReceivedText,
		&j.Status,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if args.RCAID.Valid {
		j.RCAID = args.RCAID.String
	}
	if args.RCAConfidence.Valid {
		c := args.RCAConfidence.Float64
		j.RCAConfidence = &c
	}
	if args.Token.Valid {
		j.Token = args.Token.String
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func statusArgs(statuses []Status) []interface{} {
	out := make([]interface{}, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
