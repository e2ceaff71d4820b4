package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/rpawatch/errors"
	rwtest "github.com/teranos/rpawatch/internal/testing"
	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/normalize"
	"github.com/teranos/rpawatch/rca"
	"github.com/teranos/rpawatch/records"
	"github.com/teranos/rpawatch/remedy"
)

type stubPipeline struct {
	mu        sync.Mutex
	triggered []string
	err       error
	jobs      *jobs.Store
}

func (p *stubPipeline) Trigger(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.triggered = append(p.triggered, id)
}

func (p *stubPipeline) Remediate(_ context.Context, id string) error {
	if p.err != nil {
		return p.err
	}
	return p.jobs.MarkCompleted(id)
}

type stubFeed struct{}

func (stubFeed) Connected() bool { return true }

type fixture struct {
	deps     Deps
	pipeline *stubPipeline
	srv      *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := rwtest.CreateTestDB(t)
	log := zaptest.NewLogger(t).Sugar()

	jobStore := jobs.NewStore(db, log)
	p := &stubPipeline{jobs: jobStore}
	deps := Deps{
		Jobs:       jobStore,
		Audit:      jobs.NewAuditStore(db),
		Executions: records.NewExecutionStore(db, log),
		Logs:       records.NewLogStore(db, log),
		KB:         rca.NewStore(db),
		Pipeline:   p,
		Feed:       stubFeed{},
	}
	s := New(deps, Config{AllowedOrigins: []string{"http://ops.example.com"}}, log)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{deps: deps, pipeline: p, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf strings.Builder
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, []byte(buf.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, true, health["feed_connected"])
	assert.Contains(t, health, "version")
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestJobs(t *testing.T) {
	f := newFixture(t)
	job, _, err := f.deps.Jobs.Ensure("E1")
	require.NoError(t, err)

	resp, body := f.do(t, http.MethodGet, "/api/jobs?status=Started", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []jobs.Job
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, job.ID, list[0].ID)

	resp, body = f.do(t, http.MethodGet, "/api/jobs?status=Completed", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	resp, _ = f.do(t, http.MethodGet, "/api/jobs?status=Bogus", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/jobs/"+job.ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/jobs/"+job.ID, "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestUpdateJob(t *testing.T) {
	f := newFixture(t)
	job, _, err := f.deps.Jobs.Ensure("E1")
	require.NoError(t, err)

	resp, body := f.do(t, http.MethodPut, "/api/jobs/"+job.ID, `{"rca_id":"RCA-9"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var got jobs.Job
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "RCA-9", got.RCAID)

	// backwards transitions are refused
	resp, _ = f.do(t, http.MethodPut, "/api/jobs/"+job.ID, `{"status":"NotStarted"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/api/jobs/"+job.ID, `{"unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	entries, err := f.deps.Audit.List(job.ID, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExecutionsAndLogs(t *testing.T) {
	f := newFixture(t)
	_, err := f.deps.Executions.UpsertExecution(normalize.Record{"ExecutionID": "E1", "State": "Faulted"})
	require.NoError(t, err)
	_, err = f.deps.Logs.UpsertLog(normalize.Record{"ExecutionID": "E1", "LogId": "1", "Message": "boom"})
	require.NoError(t, err)

	resp, body := f.do(t, http.MethodGet, "/api/executions?faulted=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var execs []records.Execution
	require.NoError(t, json.Unmarshal(body, &execs))
	require.Len(t, execs, 1)

	resp, _ = f.do(t, http.MethodGet, "/api/executions/E1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/api/logs/E1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var logs []records.Log
	require.NoError(t, json.Unmarshal(body, &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "boom", logs[0].Message)

	resp, body = f.do(t, http.MethodGet, "/api/logs/none", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	resp, _ = f.do(t, http.MethodGet, "/api/executions?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRCA(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/rca", `{"rca_id":"RCA-1","root_cause":"selector drift","base_confidence":0.7}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = f.do(t, http.MethodGet, "/api/rca/RCA-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec rca.Record
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, "selector drift", rec.RootCause)

	resp, _ = f.do(t, http.MethodPost, "/api/rca", `{"root_cause":"no id"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/rca/none", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuditLogs(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/auditlogs", `{"job_id":"J1","message":"checked by hand"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var e jobs.AuditEntry
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, jobs.ActorOperator, e.Actor)

	resp, body = f.do(t, http.MethodGet, "/api/auditlogs?job_id=J1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []jobs.AuditEntry
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)

	resp, _ = f.do(t, http.MethodPost, "/api/auditlogs", `{"message":"no job"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRestartAndEvent(t *testing.T) {
	f := newFixture(t)
	job, _, err := f.deps.Jobs.Ensure("E1")
	require.NoError(t, err)

	resp, _ := f.do(t, http.MethodPost, "/v1/event?jobid="+job.ID, "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{job.ID}, f.pipeline.triggered)

	resp, _ = f.do(t, http.MethodPost, "/v1/event?jobid=missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/v1/event", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.pipeline.err = errors.Wrap(remedy.ErrRobotNotFound, `"bot-99"`)
	resp, _ = f.do(t, http.MethodPost, "/api/restart/"+job.ID, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	f.pipeline.err = nil
	resp, body := f.do(t, http.MethodPost, "/api/restart/"+job.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got jobs.Job
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, jobs.StatusCompleted, got.Status)
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/jobs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://ops.example.com:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://ops.example.com:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(errors.NewNotFoundError("job %s", "x")))
	assert.Equal(t, http.StatusConflict, statusFor(errors.Wrap(errors.ErrInvalidTransition, "x")))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(errors.NewMissingPrerequisite("x")))
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.Wrap(errors.ErrMalformedInput, "x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("disk full")))
}
