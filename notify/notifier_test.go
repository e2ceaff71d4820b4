package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/rpawatch/errors"
	rwtest "github.com/teranos/rpawatch/internal/testing"
	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/mail"
	"github.com/teranos/rpawatch/normalize"
	"github.com/teranos/rpawatch/rca"
	"github.com/teranos/rpawatch/records"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg mail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type failingDrafter struct{}

func (failingDrafter) Draft(context.Context, Draft) (Content, error) {
	return Content{}, errors.New("model unavailable")
}

type fixture struct {
	jobs       *jobs.Store
	executions *records.ExecutionStore
	kb         *rca.Store
	sender     *recordingSender
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := rwtest.CreateTestDB(t)
	log := zaptest.NewLogger(t).Sugar()
	f := fixture{
		jobs:       jobs.NewStore(db, log),
		executions: records.NewExecutionStore(db, log),
		kb:         rca.NewStore(db),
		sender:     &recordingSender{},
	}
	_, err := f.executions.UpsertExecution(normalize.Record{
		"ExecutionId": "E1", "State": "Faulted", "ProcessName": "Invoices", "RobotName": "bot-03",
	})
	require.NoError(t, err)
	return f
}

func (f fixture) notifier(t *testing.T, d Drafter) *Notifier {
	cfg := Config{Subject: "RCA Bot Alert", DeveloperTo: "dev@example.com", BusinessTo: "biz@example.com"}
	return NewNotifier(cfg, f.jobs, f.executions, f.kb, d, f.sender, zaptest.NewLogger(t).Sugar())
}

func TestNotify_SendsAndRecords(t *testing.T) {
	f := newFixture(t)
	n := f.notifier(t, nil)
	n.newToken = func() string { return "ab12" }

	job, _, err := f.jobs.Ensure("E1")
	require.NoError(t, err)

	msg, err := n.Notify(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", msg.To)
	assert.Equal(t, "RCA Bot Alert ab12", msg.Subject)
	assert.Contains(t, msg.Body, "Invoices")
	assert.Contains(t, msg.Body, "Reply YES")
	require.Len(t, f.sender.sent, 1)

	stored, err := f.jobs.Get(job.ID)
	require.NoError(t, err)
	assert.True(t, stored.MailSent)
	assert.Equal(t, "ab12", stored.Token)
	assert.Equal(t, msg.Body, stored.MailSentText)
	assert.Equal(t, jobs.StatusWaitingForReply, stored.Status)
	assert.Equal(t, jobs.StatusWaitingForReply, job.Status)

	_, err = n.Notify(context.Background(), job)
	assert.True(t, errors.Is(err, errors.ErrConflict), "a second mail is refused")
	assert.Len(t, f.sender.sent, 1)
}

func TestNotify_BusinessRecipient(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.kb.Upsert(&rca.Record{RCAID: "RCA-B", SolutionType: rca.SolutionTypeBusiness, RootCause: "vendor portal down"}))
	n := f.notifier(t, nil)

	job, _, err := f.jobs.Ensure("E1")
	require.NoError(t, err)
	require.NoError(t, f.jobs.SetRCA(job.ID, "RCA-B", 0.9))
	job.RCAID = "RCA-B"

	msg, err := n.Notify(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "biz@example.com", msg.To)
	assert.Contains(t, msg.Body, "vendor portal down")
}

func TestNotify_TokenCollision(t *testing.T) {
	f := newFixture(t)
	_, err := f.executions.UpsertExecution(normalize.Record{"ExecutionId": "E2", "State": "Faulted"})
	require.NoError(t, err)

	n := f.notifier(t, nil)
	tokens := []string{"ab12", "ab12", "cd34"}
	n.newToken = func() string {
		tok := tokens[0]
		tokens = tokens[1:]
		return tok
	}

	first, _, err := f.jobs.Ensure("E1")
	require.NoError(t, err)
	second, _, err := f.jobs.Ensure("E2")
	require.NoError(t, err)

	_, err = n.Notify(context.Background(), first)
	require.NoError(t, err)
	msg, err := n.Notify(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, "RCA Bot Alert cd34", msg.Subject)
}

func TestNotify_DrafterFallback(t *testing.T) {
	f := newFixture(t)
	n := f.notifier(t, failingDrafter{})

	job, _, err := f.jobs.Ensure("E1")
	require.NoError(t, err)

	msg, err := n.Notify(context.Background(), job)
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "E1")
}

func TestNotify_SendFailureLeavesJobUntouched(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("connection refused")
	n := f.notifier(t, nil)

	job, _, err := f.jobs.Ensure("E1")
	require.NoError(t, err)

	_, err = n.Notify(context.Background(), job)
	require.Error(t, err)

	stored, err := f.jobs.Get(job.ID)
	require.NoError(t, err)
	assert.False(t, stored.MailSent)
	assert.Equal(t, jobs.StatusStarted, stored.Status)
}

func TestNotify_MissingExecution(t *testing.T) {
	f := newFixture(t)
	n := f.notifier(t, nil)

	job, _, err := f.jobs.Ensure("E-unknown")
	require.NoError(t, err)

	_, err = n.Notify(context.Background(), job)
	assert.True(t, errors.IsMissingPrerequisite(err))
}

type fakeCompleter struct {
	reply string
}

func (f fakeCompleter) CompleteJSON(_ context.Context, _ string, v interface{}) error {
	return json.Unmarshal([]byte(f.reply), v)
}

func TestOpenAIDrafter(t *testing.T) {
	d := NewOpenAIDrafter(fakeCompleter{reply: `{"subject": "Restart needed", "body": "Invoices failed on bot-03."}`})
	c, err := d.Draft(context.Background(), Draft{
		Job:       &jobs.Job{ID: "J1"},
		Execution: &records.Execution{ExecutionID: "E1", Process: "Invoices"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Restart needed", c.Subject)
	assert.Contains(t, c.Body, approvalInstruction, "instruction appended when missing")

	d = NewOpenAIDrafter(fakeCompleter{reply: `{"subject": "x", "body": ""}`})
	_, err = d.Draft(context.Background(), Draft{Job: &jobs.Job{}, Execution: &records.Execution{}})
	assert.True(t, errors.Is(err, errors.ErrMalformedInput))
}

func TestSendDirect(t *testing.T) {
	f := newFixture(t)
	n := f.notifier(t, nil)

	require.NoError(t, n.SendDirect(context.Background(), "hello", "world"))
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "dev@example.com", f.sender.sent[0].To)
}
