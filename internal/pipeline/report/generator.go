package report

import (
	"context"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"

	errx "github.com/proplens/server/internal/core/error"
	"github.com/proplens/server/internal/pipeline/graph/prompts"
	"github.com/proplens/server/internal/pipeline/model"
	logx "github.com/proplens/server/pkg/logger"
)

// Generator synthesizes the result set and the original question into a
// structured report. It is not retried: failure here is fatal to the
// request, though the caller keeps the already-computed rows.
type Generator struct {
	cm einomodel.BaseChatModel
}

func NewGenerator(cm einomodel.BaseChatModel) *Generator {
	return &Generator{cm: cm}
}

func (g *Generator) Generate(ctx context.Context, st *model.PipelineState) (string, error) {
	empty := st.ResultRows == nil || len(st.ResultRows.Rows) == 0

	msgs, err := prompts.RenderReport(ctx, prompts.ReportVars{
		Question:    st.RawQuestion,
		Rewritten:   st.RewrittenQuestion,
		Results:     st.ResultRows.Render(),
		Context:     model.JoinSnippets(st.RetrievedContext),
		EmptyResult: empty,
		Truncated:   st.ResultRows != nil && st.ResultRows.Truncated,
	})
	if err != nil {
		return "", errx.New(errx.KindReport, errx.StageReport, "failed to render the report prompt", err)
	}

	out, err := g.cm.Generate(ctx, msgs)
	if err != nil {
		return "", errx.New(errx.KindReport, errx.StageReport, "the report model call failed", err)
	}

	text := strings.TrimSpace(out.Content)
	if text == "" {
		return "", errx.New(errx.KindReport, errx.StageReport, "the report model returned an empty report", nil)
	}

	logx.Debug().Str("request_id", st.RequestID).Int("report_len", len(text)).Msg("report generated")
	return text, nil
}
