package rca

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"text/template"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/records"
)

// Completer is the part of chat.Client the classifier needs
type Completer interface {
	CompleteJSON(ctx context.Context, prompt string, v interface{}) error
}

// maxPromptLogs bounds how many of the newest log lines reach the prompt
const maxPromptLogs = 10

var classifyPrompt = template.Must(template.New("classify").Parse(`You are an expert RPA root cause analyzer.

You are given:
1. A list of historical RCA records
2. The current execution metadata
3. The most recent execution log entries

Compare the execution and log details with the RCA records and pick the best
matching RCA by similarity of exception message, exception type, robot and
process. Output ONLY a JSON object, no explanation:
{
  "RCA_ID": "<best RCA_ID>",
  "Match_Confidence": <0-1>,
  "Predicted_Root_Cause": "<text>",
  "Predicted_Solution": "<text>",
  "RCA_ACTION": "<description of the suggested action>"
}

### RCA LIST:
{{.KB}}

### EXECUTION:
{{.Execution}}

### LATEST LOG ENTRIES:
{{.Logs}}

Return JSON only.
`))

// OpenAIClassifier asks a chat model to pick the matching entry
type OpenAIClassifier struct {
	llm Completer
}

// NewOpenAIClassifier creates a classifier backed by an OpenAI-compatible model
func NewOpenAIClassifier(llm Completer) *OpenAIClassifier {
	return &OpenAIClassifier{llm: llm}
}

// confidence accepts a number or a numeric string
type confidence float64

func (c *confidence) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*c = confidence(f)
	return nil
}

type classifyResponse struct {
	RCAID      string     `json:"RCA_ID"`
	Confidence confidence `json:"Match_Confidence"`
	RootCause  string     `json:"Predicted_Root_Cause"`
	Solution   string     `json:"Predicted_Solution"`
	Action     string     `json:"RCA_ACTION"`
}

// Classify builds the prompt and maps the model's answer onto a Match
func (c *OpenAIClassifier) Classify(ctx context.Context, exec *records.Execution, logs []*records.Log, kb []*Record) (Match, error) {
	prompt, err := BuildPrompt(exec, logs, kb)
	if err != nil {
		return Match{}, err
	}

	var resp classifyResponse
	if err := c.llm.CompleteJSON(ctx, prompt, &resp); err != nil {
		return Match{}, err
	}

	m := Match{
		RCAID:      strings.TrimSpace(resp.RCAID),
		Confidence: float64(resp.Confidence),
		RootCause:  resp.RootCause,
		Solution:   resp.Solution,
		Action:     resp.Action,
	}
	if m.Confidence < 0 {
		m.Confidence = 0
	}
	if m.Confidence > 1 {
		m.Confidence = 1
	}
	return m, nil
}

// BuildPrompt renders the classification prompt
func BuildPrompt(exec *records.Execution, logs []*records.Log, kb []*Record) (string, error) {
	if len(logs) > maxPromptLogs {
		logs = logs[len(logs)-maxPromptLogs:]
	}

	kbJSON, err := json.MarshalIndent(kb, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal knowledge base")
	}
	execJSON, err := json.MarshalIndent(exec, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal execution")
	}
	logsJSON, err := json.MarshalIndent(logs, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal logs")
	}

	var buf bytes.Buffer
	err = classifyPrompt.Execute(&buf, map[string]string{
		"KB":        string(kbJSON),
		"Execution": string(execJSON),
		"Logs":      string(logsJSON),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to render prompt")
	}
	return buf.String(), nil
}
