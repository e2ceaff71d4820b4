package server

import (
	"net/http"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/rca"
	"github.com/teranos/rpawatch/records"
)

// HandleJobs lists jobs, optionally filtered by ?status=
func (s *Server) HandleJobs(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}

	limit, err := queryLimit(r, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var status *jobs.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		if !jobs.IsValidStatus(raw) {
			writeError(w, http.StatusBadRequest, "unknown status "+raw)
			return
		}
		st := jobs.Status(raw)
		status = &st
	}

	list, err := s.deps.Jobs.List(status, limit)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to list jobs")
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleJob returns (GET) or partially updates (PUT) one job
func (s *Server) HandleJob(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	id := r.PathValue("id")

	if r.Method == http.MethodGet {
		job, err := s.deps.Jobs.Get(id)
		if err != nil {
			writeWrappedError(w, s.logger, err, "failed to get job")
			return
		}
		writeJSON(w, http.StatusOK, job)
		return
	}

	var u jobs.Update
	if err := readJSON(w, r, &u); err != nil {
		return
	}
	job, err := s.deps.Jobs.Apply(id, u)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to update job")
		return
	}
	if s.deps.Audit != nil {
		if err := s.deps.Audit.Record(id, jobs.ActorOperator, "job updated via api"); err != nil {
			s.logger.Warnw("Failed to record audit entry", "job_id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleExecutions lists the most recently observed executions
func (s *Server) HandleExecutions(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}
	limit, err := queryLimit(r, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var list []*records.Execution
	if r.URL.Query().Get("faulted") == "true" {
		list, err = s.deps.Executions.ListFaulted()
	} else {
		list, err = s.deps.Executions.List(limit)
	}
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to list executions")
		return
	}
	if list == nil {
		list = []*records.Execution{}
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleExecution returns one execution
func (s *Server) HandleExecution(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}
	e, err := s.deps.Executions.Get(r.PathValue("executionId"))
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleLogs returns the stored logs of one execution
func (s *Server) HandleLogs(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}
	logs, err := s.deps.Logs.ListByExecution(r.PathValue("executionId"))
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to list logs")
		return
	}
	if logs == nil {
		logs = []*records.Log{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// HandleRCAs lists (GET) or upserts (POST) knowledge base entries
func (s *Server) HandleRCAs(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	if r.Method == http.MethodGet {
		list, err := s.deps.KB.List()
		if err != nil {
			writeWrappedError(w, s.logger, err, "failed to list rca records")
			return
		}
		if list == nil {
			list = []*rca.Record{}
		}
		writeJSON(w, http.StatusOK, list)
		return
	}

	var rec rca.Record
	if err := readJSON(w, r, &rec); err != nil {
		return
	}
	if err := s.deps.KB.Upsert(&rec); err != nil {
		writeWrappedError(w, s.logger, err, "failed to upsert rca record")
		return
	}
	stored, err := s.deps.KB.Get(rec.RCAID)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to read rca record")
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// HandleRCA returns one knowledge base entry
func (s *Server) HandleRCA(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}
	rec, err := s.deps.KB.Get(r.PathValue("id"))
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to get rca record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleAuditLogs lists (GET ?job_id=) or appends (POST) audit entries
func (s *Server) HandleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	if r.Method == http.MethodGet {
		limit, err := queryLimit(r, 100)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		entries, err := s.deps.Audit.List(r.URL.Query().Get("job_id"), limit)
		if err != nil {
			writeWrappedError(w, s.logger, err, "failed to list audit entries")
			return
		}
		if entries == nil {
			entries = []*jobs.AuditEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}

	var e jobs.AuditEntry
	if err := readJSON(w, r, &e); err != nil {
		return
	}
	if e.Actor == "" {
		e.Actor = jobs.ActorOperator
	}
	stored, err := s.deps.Audit.Append(e)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to append audit entry")
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// HandleRestart runs remediation for a job now
func (s *Server) HandleRestart(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}
	id := r.PathValue("jobId")
	if err := s.deps.Pipeline.Remediate(r.Context(), id); err != nil {
		writeWrappedError(w, s.logger, err, "failed to restart job")
		return
	}
	job, err := s.deps.Jobs.Get(id)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to get job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleEvent triggers background processing of ?jobid=
func (s *Server) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}
	id := r.URL.Query().Get("jobid")
	if id == "" {
		writeError(w, http.StatusBadRequest, "jobid is required")
		return
	}
	if _, err := s.deps.Jobs.Get(id); err != nil {
		writeWrappedError(w, s.logger, errors.Wrap(err, "unknown job"), "failed to trigger job")
		return
	}
	s.deps.Pipeline.Trigger(id)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered", "job_id": id})
}
