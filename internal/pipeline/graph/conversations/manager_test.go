package conversations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proplens/server/internal/pipeline/model"
)

type fakeRepo struct {
	turns    []model.ConversationTurn
	appended []model.ConversationTurn
	err      error
}

func (f *fakeRepo) AppendTurn(ctx context.Context, turn model.ConversationTurn) error {
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, turn)
	return nil
}

func (f *fakeRepo) ListRecent(ctx context.Context, conversationID string, limit int) ([]model.ConversationTurn, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.turns) > limit {
		return f.turns[len(f.turns)-limit:], nil
	}
	return f.turns, nil
}

func TestWindowRendersRecentTurns(t *testing.T) {
	repo := &fakeRepo{turns: []model.ConversationTurn{
		{Question: "average price in Richmond?", Report: "The average price is $1.25M."},
		{Question: "and in Fitzroy?", Report: "The average price is $1.18M."},
	}}
	m := NewTurnsManager(repo, 5)

	window, err := m.Window(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(window, "<conversation_context>"))
	assert.True(t, strings.HasSuffix(window, "</conversation_context>"))
	assert.Contains(t, window, "UserQuestion(average price in Richmond?)")
	assert.Contains(t, window, "AssistantReport(The average price is $1.18M.)")
}

func TestWindowTruncatesLongReports(t *testing.T) {
	repo := &fakeRepo{turns: []model.ConversationTurn{
		{Question: "q", Report: strings.Repeat("x", 1000)},
	}}
	m := NewTurnsManager(repo, 5)

	window, err := m.Window(context.Background(), "c1")
	require.NoError(t, err)
	assert.Contains(t, window, strings.Repeat("x", reportExcerptLen)+"...")
	assert.NotContains(t, window, strings.Repeat("x", reportExcerptLen+1))
}

func TestWindowEmptyWithoutRepoOrTurns(t *testing.T) {
	m := NewTurnsManager(nil, 5)
	window, err := m.Window(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, window)

	m = NewTurnsManager(&fakeRepo{}, 5)
	window, err = m.Window(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, window)
}

func TestWindowPropagatesRepoError(t *testing.T) {
	m := NewTurnsManager(&fakeRepo{err: errors.New("redis down")}, 5)
	_, err := m.Window(context.Background(), "c1")
	assert.Error(t, err)
}

func TestSaveTurn(t *testing.T) {
	repo := &fakeRepo{}
	m := NewTurnsManager(repo, 5)

	err := m.SaveTurn(context.Background(), &model.PipelineState{
		UserID:         "u1",
		ConversationID: "c1",
		RawQuestion:    "average price?",
		Report:         "the report",
	})
	require.NoError(t, err)
	require.Len(t, repo.appended, 1)

	turn := repo.appended[0]
	assert.NotEmpty(t, turn.TurnID)
	assert.Equal(t, "c1", turn.ConversationID)
	assert.Equal(t, "average price?", turn.Question)
	assert.Equal(t, "the report", turn.Report)
	assert.False(t, turn.CreatedAt.IsZero())
}
