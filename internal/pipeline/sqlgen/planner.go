package sqlgen

import (
	"fmt"
	"strings"

	"context"

	einomodel "github.com/cloudwego/eino/components/model"

	errx "github.com/proplens/server/internal/core/error"
	"github.com/proplens/server/internal/pipeline/graph/prompts"
	"github.com/proplens/server/internal/pipeline/model"
	logx "github.com/proplens/server/pkg/logger"
)

// Planner turns a rewritten question plus schema context into one candidate
// SQL statement. It is the only component that sees the validation feedback
// from prior rejected attempts, and its output is deliberately uncached so
// each attempt may differ given new feedback.
type Planner struct {
	cm     einomodel.BaseChatModel
	schema *Schema
}

func NewPlanner(cm einomodel.BaseChatModel, schema *Schema) *Planner {
	return &Planner{cm: cm, schema: schema}
}

func (p *Planner) Plan(ctx context.Context, question string, snippets []model.Snippet, priorErrors []string) (string, error) {
	msgs, err := prompts.RenderPlan(ctx, prompts.PlanVars{
		Schema:  p.schema.Describe(),
		Context: model.JoinSnippets(snippets),
		Errors:  formatFeedback(priorErrors),
	}, question)
	if err != nil {
		return "", errx.New(errx.KindSQLValidation, errx.StagePlan, "failed to render the planning prompt", err)
	}

	out, err := p.cm.Generate(ctx, msgs)
	if err != nil {
		return "", errx.New(errx.KindSQLValidation, errx.StagePlan, "the sql planning model call failed", err)
	}

	stmt := ExtractSQL(out.Content)
	if stmt == "" {
		return "", errx.New(errx.KindSQLValidation, errx.StagePlan, "the planner produced no sql statement", nil)
	}

	logx.Debug().Int("attempt_errors", len(priorErrors)).Str("sql", stmt).Msg("planned candidate sql")
	return stmt, nil
}

// ExtractSQL pulls the statement out of a model response, unwrapping a
// markdown code fence when present.
func ExtractSQL(content string) string {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		// drop an optional language tag on the fence line
		if j := strings.IndexByte(s, '\n'); j >= 0 && !strings.ContainsAny(s[:j], " ;") {
			s = s[j+1:]
		}
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.TrimSpace(s)
}

func formatFeedback(priorErrors []string) string {
	if len(priorErrors) == 0 {
		return ""
	}
	var b strings.Builder
	for i, e := range priorErrors {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e)
	}
	return b.String()
}
