package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TerminalState is the state the pipeline halts in for one request.
type TerminalState string

const (
	TerminalNone                TerminalState = ""
	TerminalEnd                 TerminalState = "End"
	TerminalRewriteFailed       TerminalState = "RewriteFailed"
	TerminalSQLGenerationFailed TerminalState = "SqlGenerationFailed"
	TerminalExecutionFailed     TerminalState = "ExecutionFailed"
	TerminalReportFailed        TerminalState = "ReportFailed"
)

// EmailStatus records the outcome of the optional email dispatch.
type EmailStatus string

const (
	EmailNotRequested EmailStatus = "NotRequested"
	EmailSent         EmailStatus = "Sent"
	EmailFailed       EmailStatus = "Failed"
)

// Snippet is one retrieved context document with its similarity score.
type Snippet struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// ResultSet holds the ordered rows returned by a validated query.
type ResultSet struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

// Render formats the result set as a small text table for prompts and
// degraded responses.
func (rs *ResultSet) Render() string {
	if rs == nil || len(rs.Rows) == 0 {
		return "(no rows)"
	}

	var b strings.Builder
	b.WriteString(strings.Join(rs.Columns, " | "))
	for _, row := range rs.Rows {
		cells := make([]string, 0, len(row))
		for _, v := range row {
			cells = append(cells, fmt.Sprint(v))
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(cells, " | "))
	}
	if rs.Truncated {
		b.WriteString("\n(result truncated)")
	}
	return b.String()
}

// JoinSnippets renders retrieved context for prompt injection, ranked order
// preserved.
func JoinSnippets(snippets []Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		parts = append(parts, s.Content)
	}
	return strings.Join(parts, "\n")
}

// Request is the caller-facing input for one pipeline run. UserID comes from
// the authentication collaborator; the pipeline never authenticates itself.
type Request struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question"`
}

// PipelineState is the unit of work threaded through every stage. It is
// owned by one pipeline run for its whole lifetime and flows along the graph
// edges; stages mutate it in place. It is never shared across requests.
type PipelineState struct {
	RequestID      string
	UserID         string
	ConversationID string
	RawQuestion    string

	RetrievedContext []Snippet
	ContextDegraded  bool

	RewrittenQuestion string

	CandidateSQL     string
	ValidationErrors []string
	RetryCount       int
	// Retrying is set by the validate/run stages when the current attempt
	// was rejected and the budget allows another planning pass. Branch
	// conditions route on it and the next stage resets it.
	Retrying bool

	ResultRows *ResultSet

	Report string

	EmailIntent string
	EmailStatus EmailStatus

	Terminal TerminalState
}

// NewPipelineState builds the per-request state with a fresh request ID.
func NewPipelineState(req Request) *PipelineState {
	return &PipelineState{
		RequestID:      uuid.NewString(),
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		RawQuestion:    req.Question,
		EmailStatus:    EmailNotRequested,
	}
}
