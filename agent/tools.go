package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/mail"
	"github.com/teranos/rpawatch/pipeline"
)

// registerTools registers all MCP tools
func (s *MCPServer) registerTools() {
	s.server.AddTool(mcp.NewTool("get_job",
		mcp.WithDescription("Get a job's status, RCA match and mail exchange"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job identifier"),
		),
	), s.handleGetJob)

	s.server.AddTool(mcp.NewTool("get_rca",
		mcp.WithDescription("Get the knowledge base entry matched to a job, with the match confidence"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job identifier"),
		),
	), s.handleGetRCA)

	s.server.AddTool(mcp.NewTool("send_mail",
		mcp.WithDescription("Send a message about a job to the developer address"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job identifier"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Mail subject"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Plain text body"),
		),
	), s.handleSendMail)

	s.server.AddTool(mcp.NewTool("perform_action",
		mcp.WithDescription("Restart the faulted execution behind a job and complete it. Requires an approving reply unless force is set."),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job identifier"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Restart without an approving reply (default: false)"),
		),
	), s.handlePerformAction)

	s.server.AddTool(mcp.NewTool("post_audit_log",
		mcp.WithDescription("Append an audit entry to a job's trail"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job identifier"),
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("What happened"),
		),
		mcp.WithString("job_type",
			mcp.Description("Job category (default: the job's own type)"),
		),
		mcp.WithString("actor",
			mcp.Description("Who acted (default: assistant)"),
		),
	), s.handlePostAuditLog)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *MCPServer) handleGetJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	job, err := s.deps.Jobs.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get job: %v", err)), nil
	}
	return jsonResult(job)
}

type rcaResult struct {
	JobID      string   `json:"job_id"`
	RCAID      string   `json:"rca_id"`
	Confidence *float64 `json:"confidence,omitempty"`
	RootCause  string   `json:"root_cause,omitempty"`
	Solution   string   `json:"solution_type,omitempty"`
	InKB       bool     `json:"in_knowledge_base"`
}

func (s *MCPServer) handleGetRCA(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	job, err := s.deps.Jobs.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get job: %v", err)), nil
	}
	if job.RCAID == "" {
		return mcp.NewToolResultError(fmt.Sprintf("Job %s has no RCA match yet", id)), nil
	}

	res := rcaResult{JobID: job.ID, RCAID: job.RCAID, Confidence: job.RCAConfidence}
	rec, err := s.deps.KB.Get(job.RCAID)
	switch {
	case err == nil:
		res.InKB = true
		res.RootCause = rec.RootCause
		res.Solution = rec.SolutionType
	case errors.IsNotFound(err):
		// classifier may name an RCA outside the knowledge base
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get rca %s: %v", job.RCAID, err)), nil
	}
	return jsonResult(res)
}

func (s *MCPServer) handleSendMail(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Mail == nil {
		return mcp.NewToolResultError("Mail is not configured"), nil
	}
	id, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	subject, err := request.RequireString("subject")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := request.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	// replies to a tagged subject would be matched to that token's job
	if _, tagged := mail.ExtractToken(subject); tagged {
		return mcp.NewToolResultError("Subject must not carry a correlation token"), nil
	}
	if _, err := s.deps.Jobs.Get(id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get job: %v", err)), nil
	}

	if err := s.deps.Mail.SendDirect(ctx, subject, body); err != nil {
		s.logger.Warnw("MCP send_mail failed", "job_id", id, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send mail: %v", err)), nil
	}
	s.record(id, "", "mail sent: "+subject)
	return mcp.NewToolResultText(fmt.Sprintf("Mail sent for job %s", id)), nil
}

func (s *MCPServer) handlePerformAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	force := request.GetBool("force", false)

	job, err := s.deps.Jobs.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get job: %v", err)), nil
	}
	if !force && !pipeline.IsApproval(job.MailReceivedText) {
		return mcp.NewToolResultError(fmt.Sprintf(
			"Job %s has no approving reply; pass force=true to restart anyway", id)), nil
	}

	if err := s.deps.Pipeline.Remediate(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Restart failed: %v", err)), nil
	}
	s.record(id, "", fmt.Sprintf("restart requested (force=%t)", force))

	updated, err := s.deps.Jobs.Get(id)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("Job %s restarted", id)), nil
	}
	return jsonResult(updated)
}

func (s *MCPServer) handlePostAuditLog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	e := jobs.AuditEntry{
		JobID:   id,
		JobType: request.GetString("job_type", ""),
		Actor:   request.GetString("actor", jobs.ActorAssistant),
		Message: message,
	}
	if e.JobType == "" {
		if job, err := s.deps.Jobs.Get(id); err == nil {
			e.JobType = job.JobType
		}
	}
	stored, err := s.deps.Audit.Append(e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to append audit entry: %v", err)), nil
	}
	return jsonResult(stored)
}

// record appends an assistant audit entry; failures are logged only
func (s *MCPServer) record(jobID, jobType, message string) {
	if s.deps.Audit == nil {
		return
	}
	if _, err := s.deps.Audit.Append(jobs.AuditEntry{
		JobID:   jobID,
		JobType: jobType,
		Actor:   jobs.ActorAssistant,
		Message: message,
	}); err != nil {
		s.logger.Warnw("Failed to record audit entry", "job_id", jobID, "error", err)
	}
}
