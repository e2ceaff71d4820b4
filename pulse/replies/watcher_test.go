package replies

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/rpawatch/errors"
	rwtest "github.com/teranos/rpawatch/internal/testing"
	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/mail"
)

type stubPoller struct {
	mu      sync.Mutex
	batches [][]mail.Reply
	err     error
}

func (p *stubPoller) PollUnseen(context.Context) ([]mail.Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if len(p.batches) == 0 {
		return nil, nil
	}
	b := p.batches[0]
	p.batches = p.batches[1:]
	return b, nil
}

type recordingTrigger struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingTrigger) Trigger(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recordingTrigger) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func waitingJob(t *testing.T, store *jobs.Store, execID, token string) *jobs.Job {
	t.Helper()
	job, _, err := store.Ensure(execID)
	require.NoError(t, err)
	require.NoError(t, store.SetRCA(job.ID, "RCA-1", 0.8))
	require.NoError(t, store.MarkMailSent(job.ID, "please approve", token))
	return job
}

func TestPoll_MatchesToken(t *testing.T) {
	store := jobs.NewStore(rwtest.CreateTestDB(t), zaptest.NewLogger(t).Sugar())
	job := waitingJob(t, store, "E1", "ab12")

	poller := &stubPoller{batches: [][]mail.Reply{{
		{Subject: "Re: RCA Bot Alert AB12", Body: "yes\n\nOn Mon, ops wrote:\n> please approve"},
		{Subject: "Re: RCA Bot Alert ffff", Body: "yes"},
		{Subject: "Out of office", Body: "away"},
	}}}
	trigger := &recordingTrigger{}
	w := NewWatcher(poller, store, trigger, Config{}, zaptest.NewLogger(t).Sugar())

	n, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{job.ID}, trigger.snapshot())

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusEmailReceived, got.Status)
	assert.Contains(t, got.MailReceivedText, "yes")
}

func TestPoll_SecondReplyIgnored(t *testing.T) {
	store := jobs.NewStore(rwtest.CreateTestDB(t), zaptest.NewLogger(t).Sugar())
	waitingJob(t, store, "E1", "ab12")

	poller := &stubPoller{batches: [][]mail.Reply{
		{{Subject: "Re: RCA Bot Alert ab12", Body: "yes"}},
		{{Subject: "Fwd: Re: RCA Bot Alert ab12", Body: "no"}},
	}}
	w := NewWatcher(poller, store, nil, Config{}, zaptest.NewLogger(t).Sugar())

	n, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = w.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "job is no longer waiting")
}

func TestPoll_Error(t *testing.T) {
	store := jobs.NewStore(rwtest.CreateTestDB(t), zaptest.NewLogger(t).Sugar())
	w := NewWatcher(&stubPoller{err: errors.New("imap down")}, store, nil, Config{}, zaptest.NewLogger(t).Sugar())

	_, err := w.Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "imap down")
}

func TestWatcher_StartStop(t *testing.T) {
	store := jobs.NewStore(rwtest.CreateTestDB(t), zaptest.NewLogger(t).Sugar())
	job := waitingJob(t, store, "E1", "ab12")

	poller := &stubPoller{batches: [][]mail.Reply{{{Subject: "RE: RCA Bot Alert ab12", Body: "YES"}}}}
	trigger := &recordingTrigger{}
	w := NewWatcher(poller, store, trigger, Config{Interval: time.Hour}, zaptest.NewLogger(t).Sugar())
	w.Start()
	w.SetInterval(10 * time.Millisecond)

	require.Eventually(t, func() bool { return len(trigger.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	w.Stop()
	assert.Equal(t, []string{job.ID}, trigger.snapshot())
}
