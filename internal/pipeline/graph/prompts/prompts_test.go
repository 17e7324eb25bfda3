package prompts

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRewriteKeepsQuestionOutOfTemplate(t *testing.T) {
	// A question with template syntax must never be interpreted.
	question := "average price {{.Context}} in Richmond"

	msgs, err := RenderRewrite(context.Background(), RewriteVars{
		Context: "properties.price: listing price",
	}, question)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "properties.price")

	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, question, msgs[1].Content)
}

func TestRenderRewriteEmptyContext(t *testing.T) {
	msgs, err := RenderRewrite(context.Background(), RewriteVars{}, "average price?")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Content, "(none)")
}

func TestRenderPlanIncludesSchemaAndFeedback(t *testing.T) {
	msgs, err := RenderPlan(context.Background(), PlanVars{
		Schema:  "public.properties columns: suburb, price",
		Context: "properties.price: listing price",
		Errors:  "1. unknown column \"salary\"",
	}, "average price by suburb")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Contains(t, msgs[0].Content, "public.properties columns")
	assert.Contains(t, msgs[0].Content, "unknown column")
	assert.Contains(t, msgs[1].Content, "average price by suburb")
}

func TestRenderReport(t *testing.T) {
	msgs, err := RenderReport(context.Background(), ReportVars{
		Question:  "average price by suburb",
		Rewritten: "average property price grouped by suburb",
		Results:   "suburb | avg_price\nRichmond | 1250000",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Contains(t, msgs[0].Content, "Richmond | 1250000")
	assert.Contains(t, msgs[0].Content, "average price by suburb")
}
