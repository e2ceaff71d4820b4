package jobs

import (
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/rpawatch/errors"
	rwtest "github.com/teranos/rpawatch/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(rwtest.CreateTestDB(t), zaptest.NewLogger(t).Sugar())
}

func TestEnsure_CreatesStartedJob(t *testing.T) {
	store := newTestStore(t)

	job, created, err := store.Ensure("E1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "E1", job.ExecutionID)
	assert.Equal(t, StatusStarted, job.Status)
	assert.Equal(t, JobTypeRetryFaulted, job.JobType)
	assert.NotEmpty(t, job.ID)

	again, created, err := store.Ensure("E1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, job.ID, again.ID)
}

func TestEnsure_EmptyExecution(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Ensure("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestEnsure_ConcurrentCallersYieldOneJob(t *testing.T) {
	store := newTestStore(t)

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	ids := map[string]struct{}{}

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, created, err := store.Ensure("E1")
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if created {
				createdCount++
			}
			ids[job.ID] = struct{}{}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount, "exactly one caller creates the job")
	assert.Len(t, ids, 1, "every caller sees the same job")

	list, err := store.List(nil, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEnsure_LostInsertRaceReReads(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	selectByExec := regexp.QuoteMeta(`FROM jobs WHERE execution_id = ?`)
	now := time.Now()
	cols := []string{"id", "execution_id", "job_type", "rca_id", "rca_confidence", "token",
		"mail_sent", "mail_sent_text", "mail_received_text", "status", "created_at", "updated_at"}

	mock.ExpectQuery(selectByExec).WithArgs("E1").WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO jobs`)).
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})
	mock.ExpectQuery(selectByExec).WithArgs("E1").WillReturnRows(
		sqlmock.NewRows(cols).AddRow("winner", "E1", JobTypeRetryFaulted, nil, nil, nil,
			false, "", "", string(StatusStarted), now, now))

	store := NewStore(database, zaptest.NewLogger(t).Sugar())
	job, created, err := store.Ensure("E1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "winner", job.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkMailSent(t *testing.T) {
	store := newTestStore(t)
	job, _, err := store.Ensure("E1")
	require.NoError(t, err)

	require.NoError(t, store.MarkMailSent(job.ID, "Please approve", "ab12"))

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.True(t, got.MailSent)
	assert.Equal(t, "Please approve", got.MailSentText)
	assert.Equal(t, "ab12", got.Token)
	assert.Equal(t, StatusWaitingForReply, got.Status)

	// second send is an illegal transition
	err = store.MarkMailSent(job.ID, "again", "cd34")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))

	got, err = store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "ab12", got.Token, "rejected transition leaves the row untouched")
}

func TestRecordReply(t *testing.T) {
	store := newTestStore(t)
	job, _, err := store.Ensure("E1")
	require.NoError(t, err)
	require.NoError(t, store.MarkMailSent(job.ID, "body", "ab12"))

	got, err := store.RecordReply("ab12", "YES")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, StatusEmailReceived, got.Status)
	assert.Equal(t, "YES", got.MailReceivedText)

	// nobody is waiting on the token anymore
	_, err = store.RecordReply("ab12", "YES again")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = store.RecordReply("ffff", "YES")
	assert.True(t, errors.IsNotFound(err))
}

func TestSetRCA(t *testing.T) {
	store := newTestStore(t)
	job, _, err := store.Ensure("E1")
	require.NoError(t, err)

	require.NoError(t, store.SetRCA(job.ID, "RCA-7", 0.82))

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "RCA-7", got.RCAID)
	require.NotNil(t, got.RCAConfidence)
	assert.InDelta(t, 0.82, *got.RCAConfidence, 1e-9)

	require.NoError(t, store.MarkCompleted(job.ID))
	err = store.SetRCA(job.ID, "RCA-8", 0.5)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
}

func TestMarkCompleted_Terminal(t *testing.T) {
	store := newTestStore(t)
	job, _, err := store.Ensure("E1")
	require.NoError(t, err)

	require.NoError(t, store.MarkCompleted(job.ID))
	err = store.MarkCompleted(job.ID)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))

	err = store.UpdateStatus(job.ID, StatusStarted)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))

	// Ensure on a completed execution returns it without reopening
	again, created, err := store.Ensure("E1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, StatusCompleted, again.Status)
	assert.False(t, NeedsProcessing(again, created))
}

func TestUpdateStatus_Reprocessing(t *testing.T) {
	store := newTestStore(t)
	job, _, err := store.Ensure("E1")
	require.NoError(t, err)
	require.NoError(t, store.MarkMailSent(job.ID, "body", "ab12"))
	_, err = store.RecordReply("ab12", "YES")
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(job.ID, StatusStarted))
	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStarted, got.Status)

	err = store.UpdateStatus(job.ID, Status("Bogus"))
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	err = store.UpdateStatus("missing", StatusCompleted)
	assert.True(t, errors.IsNotFound(err))
}

func TestTokenInUse(t *testing.T) {
	store := newTestStore(t)
	job, _, err := store.Ensure("E1")
	require.NoError(t, err)
	require.NoError(t, store.MarkMailSent(job.ID, "body", "ab12"))

	inUse, err := store.TokenInUse("ab12")
	require.NoError(t, err)
	assert.True(t, inUse)

	require.NoError(t, store.MarkCompleted(job.ID))
	inUse, err = store.TokenInUse("ab12")
	require.NoError(t, err)
	assert.False(t, inUse, "completed jobs release their token")
}

func TestApply(t *testing.T) {
	store := newTestStore(t)
	job, _, err := store.Ensure("E1")
	require.NoError(t, err)

	rcaID := "RCA-1"
	status := StatusWaitingForReply
	sent := true
	got, err := store.Apply(job.ID, Update{RCAID: &rcaID, Status: &status, MailSent: &sent})
	require.NoError(t, err)
	assert.Equal(t, "RCA-1", got.RCAID)
	assert.Equal(t, StatusWaitingForReply, got.Status)
	assert.True(t, got.MailSent)

	back := StatusNotStarted
	_, err = store.Apply(job.ID, Update{Status: &back})
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))

	_, err = store.Apply("missing", Update{})
	assert.True(t, errors.IsNotFound(err))
}

func TestList_FilterByStatus(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 3; i++ {
		_, _, err := store.Ensure(fmt.Sprintf("E%d", i))
		require.NoError(t, err)
	}
	j, err := store.GetByExecution("E0")
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(j.ID))

	completed := StatusCompleted
	list, err := store.List(&completed, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "E0", list[0].ExecutionID)

	started := StatusStarted
	list, err = store.List(&started, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
