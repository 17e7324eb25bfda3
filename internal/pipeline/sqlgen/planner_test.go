package sqlgen

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/proplens/server/internal/core/error"
)

type fakeChatModel struct {
	content string
	err     error
	gotMsgs []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.gotMsgs = in
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func TestExtractSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT 1":                                  "SELECT 1",
		"```sql\nSELECT suburb FROM properties\n```": "SELECT suburb FROM properties",
		"```\nSELECT 1\n```":                         "SELECT 1",
		"Here you go:\n```sql\nSELECT price FROM properties;\n```": "SELECT price FROM properties;",
		"  SELECT price FROM properties;  ":                        "SELECT price FROM properties;",
	}
	for in, want := range cases {
		assert.Equal(t, want, ExtractSQL(in), "input: %q", in)
	}
}

func TestPlanFeedsBackPriorErrors(t *testing.T) {
	cm := &fakeChatModel{content: "SELECT suburb FROM properties"}
	p := NewPlanner(cm, testSchema())

	stmt, err := p.Plan(context.Background(), "average price by suburb", nil, []string{
		`unknown column "salary"`,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT suburb FROM properties", stmt)

	require.Len(t, cm.gotMsgs, 2)
	assert.Contains(t, cm.gotMsgs[0].Content, `1. unknown column "salary"`)
	assert.Contains(t, cm.gotMsgs[1].Content, "average price by suburb")
}

func TestPlanWrapsModelFailure(t *testing.T) {
	p := NewPlanner(&fakeChatModel{err: errors.New("rate limited")}, testSchema())

	_, err := p.Plan(context.Background(), "average price?", nil, nil)
	require.Error(t, err)
	assert.Equal(t, errx.KindSQLValidation, errx.KindOf(err))
}

func TestPlanRejectsEmptyOutput(t *testing.T) {
	p := NewPlanner(&fakeChatModel{content: "```sql\n```"}, testSchema())

	_, err := p.Plan(context.Background(), "average price?", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sql statement")
}
