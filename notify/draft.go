package notify

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/rca"
	"github.com/teranos/rpawatch/records"
)

// Draft is what a Drafter knows about the failure
type Draft struct {
	Job       *jobs.Job
	Execution *records.Execution
	RCA       *rca.Record // nil when the match is outside the knowledge base
}

// Content is a drafted subject and body, before the token is appended
type Content struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Drafter composes the approval request
type Drafter interface {
	Draft(ctx context.Context, d Draft) (Content, error)
}

const approvalInstruction = "Reply YES to approve the restart. Any other reply closes the job for manual follow-up."

var staticBody = template.Must(template.New("body").Parse(`An automated process failed and can be restarted.

Execution:  {{.Execution.ExecutionID}}
Process:    {{.Execution.Process}}
Robot:      {{.Execution.Robot}}
State:      {{.Execution.State}}
{{- if .RCA}}

Known issue {{.RCA.RCAID}}
Root cause:       {{.RCA.RootCause}}
Business impact:  {{.RCA.BusinessImpact}}
Suggested action: {{.RCA.SuggestedAction}}
{{- end}}

{{.Instruction}}
`))

// StaticDrafter renders a fixed template and never fails on valid input
type StaticDrafter struct {
	Subject string
}

// Draft renders the template
func (s StaticDrafter) Draft(_ context.Context, d Draft) (Content, error) {
	if d.Execution == nil {
		return Content{}, errors.Wrap(errors.ErrInvalidRequest, "draft needs an execution")
	}

	var buf bytes.Buffer
	err := staticBody.Execute(&buf, struct {
		Draft
		Instruction string
	}{d, approvalInstruction})
	if err != nil {
		return Content{}, errors.Wrap(err, "failed to render mail body")
	}
	return Content{Subject: s.Subject, Body: buf.String()}, nil
}

// Completer is the part of chat.Client the drafter needs
type Completer interface {
	CompleteJSON(ctx context.Context, prompt string, v interface{}) error
}

var draftPrompt = template.Must(template.New("prompt").Parse(`You are an assistant drafting professional emails.
This is an action request email where the bot requires permission to restart a failed automation.

JobId: {{.Job.ID}}
ExecutionId: {{.Execution.ExecutionID}}
Process: {{.Execution.Process}}
Robot: {{.Execution.Robot}}
{{- if .RCA}}
ErrorType: {{.RCA.ExceptionType}}
RootCause: {{.RCA.RootCause}}
SuggestedAction: {{.RCA.SuggestedAction}}
{{- end}}

Draft a polite email requesting permission. The body must end by asking the
reader to reply YES to approve. Return JSON:
{
  "subject": "short subject line",
  "body": "full email body"
}
`))

// OpenAIDrafter asks a chat model to write the request
type OpenAIDrafter struct {
	llm Completer
}

// NewOpenAIDrafter creates a drafter backed by an OpenAI-compatible model
func NewOpenAIDrafter(llm Completer) *OpenAIDrafter {
	return &OpenAIDrafter{llm: llm}
}

// Draft renders the prompt and returns the model's subject and body.
// The approval instruction is appended when the model left it out.
func (o *OpenAIDrafter) Draft(ctx context.Context, d Draft) (Content, error) {
	if d.Execution == nil || d.Job == nil {
		return Content{}, errors.Wrap(errors.ErrInvalidRequest, "draft needs a job and an execution")
	}

	var buf bytes.Buffer
	if err := draftPrompt.Execute(&buf, d); err != nil {
		return Content{}, errors.Wrap(err, "failed to render draft prompt")
	}

	var c Content
	if err := o.llm.CompleteJSON(ctx, buf.String(), &c); err != nil {
		return Content{}, err
	}
	if strings.TrimSpace(c.Body) == "" {
		return Content{}, errors.Wrap(errors.ErrMalformedInput, "model returned an empty body")
	}
	if !strings.Contains(strings.ToUpper(c.Body), "YES") {
		c.Body = strings.TrimRight(c.Body, "\n") + "\n\n" + approvalInstruction + "\n"
	}
	return c, nil
}
