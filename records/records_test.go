package records

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/rpawatch/errors"
	rwtest "github.com/teranos/rpawatch/internal/testing"
	"github.com/teranos/rpawatch/normalize"
)

// fixedClock returns a clock the test can advance.
func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func countRows(t *testing.T, s *ExecutionStore, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestUpsertExecution_Scenario(t *testing.T) {
	db := rwtest.CreateTestDB(t)
	store := NewExecutionStore(db, zaptest.NewLogger(t).Sugar())

	stored, err := store.UpsertExecution(normalize.Record{"ExecutionID": "E1", "State": "Faulted"})
	require.NoError(t, err)
	assert.True(t, stored)

	assert.Equal(t, 1, countRows(t, store, "SELECT COUNT(*) FROM executions"))

	e, err := store.Get("E1")
	require.NoError(t, err)
	assert.Equal(t, "faulted", e.StateLower)
	assert.Equal(t, "Faulted", e.State)
}

func TestUpsertExecution_Twice(t *testing.T) {
	db := rwtest.CreateTestDB(t)
	store := NewExecutionStore(db, zaptest.NewLogger(t).Sugar())
	clock, advance := fixedClock(time.Date(2025, 11, 19, 8, 0, 0, 0, time.UTC))
	store.now = clock

	rec := normalize.Record{"ExecutionId": "E1", "Process": "Invoices", "Robot": "bot-03", "State": "Faulted"}

	_, err := store.UpsertExecution(rec)
	require.NoError(t, err)
	first, err := store.Get("E1")
	require.NoError(t, err)

	advance(30 * time.Second)
	_, err = store.UpsertExecution(rec)
	require.NoError(t, err)
	second, err := store.Get("E1")
	require.NoError(t, err)

	assert.Equal(t, 1, countRows(t, store, "SELECT COUNT(*) FROM executions"))
	assert.True(t, second.FirstSeen.Equal(first.FirstSeen), "first_seen is preserved")
	assert.True(t, second.LastSeen.After(first.LastSeen), "last_seen is refreshed")

	// only last_seen differs
	second.LastSeen = first.LastSeen
	assert.Equal(t, first, second)
}

func TestUpsertExecution_PreservesFirstSeenFields(t *testing.T) {
	db := rwtest.CreateTestDB(t)
	store := NewExecutionStore(db, zaptest.NewLogger(t).Sugar())

	_, err := store.UpsertExecution(normalize.Record{"ExecutionId": "E1", "Process": "Invoices", "State": "Running"})
	require.NoError(t, err)

	// later snapshot renames the process and reports the fault
	_, err = store.UpsertExecution(normalize.Record{"ExecutionId": "E1", "Process": "Renamed", "State": "Faulted", "EndTime": "08:05"})
	require.NoError(t, err)

	e, err := store.Get("E1")
	require.NoError(t, err)
	assert.Equal(t, "Invoices", e.Process)
	assert.Equal(t, "faulted", e.StateLower)
	assert.Equal(t, "08:05", e.EndTime)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(e.Raw, &raw))
	assert.Equal(t, "Invoices", raw["process"], "raw keeps the first-seen record")

	// a snapshot without state does not erase the known state
	_, err = store.UpsertExecution(normalize.Record{"ExecutionId": "E1"})
	require.NoError(t, err)
	e, err = store.Get("E1")
	require.NoError(t, err)
	assert.Equal(t, "faulted", e.StateLower)
}

func TestUpsertExecution_NoIdentity(t *testing.T) {
	db := rwtest.CreateTestDB(t)
	store := NewExecutionStore(db, zaptest.NewLogger(t).Sugar())

	stored, err := store.UpsertExecution(normalize.Record{"State": "Faulted"})
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, 0, countRows(t, store, "SELECT COUNT(*) FROM executions"))
}

func TestUpsertExecution_LongDescriptiveFields(t *testing.T) {
	db := rwtest.CreateTestDB(t)
	store := NewExecutionStore(db, zaptest.NewLogger(t).Sugar())

	process := strings.Repeat("p", 600)
	robot := strings.Repeat("r", 600)
	stored, err := store.UpsertExecution(normalize.Record{
		"ExecutionID": "E1",
		"State":       "Faulted",
		"Process":     process,
		"Robot":       robot,
	})
	require.NoError(t, err)
	assert.True(t, stored)

	faulted, err := store.ListFaulted()
	require.NoError(t, err)
	require.Len(t, faulted, 1)
	assert.Equal(t, process, faulted[0].Process)
	assert.Equal(t, robot, faulted[0].Robot)
}

func TestListFaulted(t *testing.T) {
	db := rwtest.CreateTestDB(t)
	store := NewExecutionStore(db, zaptest.NewLogger(t).Sugar())

	for id, state := range map[string]string{"E1": "Faulted", "E2": "Running", "E3": "ERROR", "E4": "failed", "E5": ""} {
		_, err := store.UpsertExecution(normalize.Record{"ExecutionId": id, "State": state})
		require.NoError(t, err)
	}

	faulted, err := store.ListFaulted()
	require.NoError(t, err)

	var ids []string
	for _, e := range faulted {
		ids = append(ids, e.ExecutionID)
	}
	assert.ElementsMatch(t, []string{"E1", "E3", "E4"}, ids)

	all, err := store.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestGetExecution_NotFound(t *testing.T) {
	db := rwtest.CreateTestDB(t)
	store := NewExecutionStore(db, zaptest.NewLogger(t).Sugar())

	_, err := store.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestUpsertLog_Scenario(t *testing.T) {
	db := rwtest.CreateTestDB(t)
	store := NewLogStore(db, zaptest.NewLogger(t).Sugar())

	rec := normalize.Record{"ExecutionID": "E1", "logid": float64(42), "message": "boom"}

	inserted, err := store.UpsertLog(rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	// identical redelivery collapses
	inserted, err = store.UpsertLog(rec)
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := store.Count("E1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	logs, err := store.ListByExecution("E1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "42", logs[0].LogID)
	assert.Equal(t, "boom", logs[0].Message)
}

func TestUpsertLog_SameKeyDifferentSpelling(t *testing.T) {
	db := rwtest.CreateTestDB(t)
	store := NewLogStore(db, zaptest.NewLogger(t).Sugar())

	_, err := store.UpsertLog(normalize.Record{"ExecutionID": "E1", "logid": "7", "message": "first"})
	require.NoError(t, err)
	inserted, err := store.UpsertLog(normalize.Record{"execution_id": "E1", "log_id": "7", "message": "second"})
	require.NoError(t, err)
	assert.False(t, inserted)

	logs, err := store.ListByExecution("E1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "first", logs[0].Message, "stored logs are immutable")
}

func TestUpsertLog_GeneratedID(t *testing.T) {
	db := rwtest.CreateTestDB(t)
	store := NewLogStore(db, zaptest.NewLogger(t).Sugar())
	ids := []string{"gen-1", "gen-2"}
	store.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	_, err := store.UpsertLog(normalize.Record{"ExecutionID": "E1", "message": "a"})
	require.NoError(t, err)
	_, err = store.UpsertLog(normalize.Record{"ExecutionID": "E1", "message": "b"})
	require.NoError(t, err)

	logs, err := store.ListByExecution("E1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.ElementsMatch(t, []string{"gen-1", "gen-2"}, []string{logs[0].LogID, logs[1].LogID})
}

func TestUpsertLog_LongIdentifiers(t *testing.T) {
	db := rwtest.CreateTestDB(t)
	store := NewLogStore(db, zaptest.NewLogger(t).Sugar())

	execID := strings.Repeat("e", 300)
	inserted, err := store.UpsertLog(normalize.Record{
		"ExecutionID": execID,
		"logid":       strings.Repeat("l", 300),
		"Message":     strings.Repeat("m", 4000),
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	n, err := store.Count(execID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertLog_NoExecutionID(t *testing.T) {
	db := rwtest.CreateTestDB(t)
	store := NewLogStore(db, zaptest.NewLogger(t).Sugar())

	inserted, err := store.UpsertLog(normalize.Record{"logid": 1, "message": "orphan"})
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestUpsertExecution_DriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO executions")).
		WillReturnError(errors.New("database is locked"))

	store := NewExecutionStore(db, zaptest.NewLogger(t).Sugar())
	_, err = store.UpsertExecution(normalize.Record{"ExecutionId": "E1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert execution E1")
	assert.NoError(t, mock.ExpectationsWereMet())
}
