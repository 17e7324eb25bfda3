package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/rewrite_prompt.txt
var rewriteSystemPrompt string

//go:embed template/plan_prompt.txt
var planSystemPrompt string

//go:embed template/report_prompt.txt
var reportSystemPrompt string

// RewriteVars feeds the rewrite system prompt.
type RewriteVars struct {
	Context string
	History string
}

// PlanVars feeds the SQL planning system prompt. Errors carries the
// validation feedback from prior rejected attempts, already joined.
type PlanVars struct {
	Schema  string
	Context string
	Errors  string
}

// ReportVars feeds the report system prompt.
type ReportVars struct {
	Question    string
	Rewritten   string
	Results     string
	Context     string
	EmptyResult bool
	Truncated   bool
}

// RenderRewrite renders the rewrite system prompt; the question is appended
// as a plain user message so user text never passes through the template.
func RenderRewrite(ctx context.Context, vars RewriteVars, question string) ([]*schema.Message, error) {
	sys, err := renderSystem(ctx, rewriteSystemPrompt, map[string]any{
		"CurrentYear": time.Now().Year(),
		"LastYear":    time.Now().Year() - 1,
		"Context":     orNone(vars.Context),
		"History":     orNone(vars.History),
	})
	if err != nil {
		return nil, fmt.Errorf("rewrite prompt render: %w", err)
	}
	return []*schema.Message{
		schema.SystemMessage(sys),
		schema.UserMessage(question),
	}, nil
}

// RenderPlan renders the SQL planning prompt.
func RenderPlan(ctx context.Context, vars PlanVars, question string) ([]*schema.Message, error) {
	sys, err := renderSystem(ctx, planSystemPrompt, map[string]any{
		"CurrentYear": time.Now().Year(),
		"Schema":      vars.Schema,
		"Context":     orNone(vars.Context),
		"Errors":      strings.TrimSpace(vars.Errors),
	})
	if err != nil {
		return nil, fmt.Errorf("plan prompt render: %w", err)
	}
	return []*schema.Message{
		schema.SystemMessage(sys),
		schema.UserMessage("Generate SQL for: " + question),
	}, nil
}

// RenderReport renders the report prompt.
func RenderReport(ctx context.Context, vars ReportVars) ([]*schema.Message, error) {
	sys, err := renderSystem(ctx, reportSystemPrompt, map[string]any{
		"CurrentYear": time.Now().Year(),
		"Question":    vars.Question,
		"Rewritten":   orNone(vars.Rewritten),
		"Results":     orNone(vars.Results),
		"Context":     orNone(vars.Context),
		"EmptyResult": vars.EmptyResult,
		"Truncated":   vars.Truncated,
	})
	if err != nil {
		return nil, fmt.Errorf("report prompt render: %w", err)
	}
	return []*schema.Message{
		schema.SystemMessage(sys),
		schema.UserMessage("Write the report."),
	}, nil
}

// renderSystem formats one system template via the Eino prompt component so
// prompt callbacks fire.
func renderSystem(ctx context.Context, tplText string, vars map[string]any) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(tplText),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("empty render result")
	}
	return msgs[0].Content, nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
