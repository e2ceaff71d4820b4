// Package agent exposes job inspection and remediation as Model Context
// Protocol tools over stdio, so an assistant can drive the same stores and
// pipeline the service uses.
package agent

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/rca"
	"github.com/teranos/rpawatch/version"
)

// JobGetter reads jobs
type JobGetter interface {
	Get(id string) (*jobs.Job, error)
}

// RCAGetter reads knowledge base entries
type RCAGetter interface {
	Get(id string) (*rca.Record, error)
}

// Mailer sends a free-form message to the developer address
type Mailer interface {
	SendDirect(ctx context.Context, subject, body string) error
}

// Remediator restarts a job's execution
type Remediator interface {
	Remediate(ctx context.Context, jobID string) error
}

// AuditAppender stores audit entries
type AuditAppender interface {
	Append(e jobs.AuditEntry) (*jobs.AuditEntry, error)
}

// Deps are the components behind the tools. Mail may be nil, which
// disables send_mail.
type Deps struct {
	Jobs     JobGetter
	KB       RCAGetter
	Mail     Mailer
	Pipeline Remediator
	Audit    AuditAppender
}

// MCPServer serves the rpawatch tool set
type MCPServer struct {
	deps   Deps
	server *server.MCPServer
	logger *zap.SugaredLogger
}

// NewMCPServer creates the server and registers every tool
func NewMCPServer(deps Deps, log *zap.SugaredLogger) *MCPServer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &MCPServer{
		deps:   deps,
		logger: log,
		server: server.NewMCPServer(
			"rpawatch",
			version.Version,
			server.WithToolCapabilities(true),
		),
	}
	s.registerTools()
	return s
}

// Server returns the underlying MCP server
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// Serve blocks serving stdin/stdout
func (s *MCPServer) Serve() error {
	s.logger.Infow("MCP server serving on stdio")
	return server.ServeStdio(s.server)
}
