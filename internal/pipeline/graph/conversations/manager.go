package conversations

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/proplens/server/internal/pipeline/model"
)

// reportExcerptLen bounds how much of a past report enters the rewrite
// context; full reports would crowd out the question being disambiguated.
const reportExcerptLen = 400

type TurnsManager struct {
	repo     model.ConversationRepository
	maxTurns int
}

func NewTurnsManager(repo model.ConversationRepository, maxTurns int) *TurnsManager {
	if maxTurns <= 0 {
		maxTurns = 5
	}
	return &TurnsManager{repo: repo, maxTurns: maxTurns}
}

// Window renders the bounded recent-turns context used by the rewriter.
func (m *TurnsManager) Window(ctx context.Context, conversationID string) (string, error) {
	if m.repo == nil {
		return "", nil
	}

	turns, err := m.repo.ListRecent(ctx, conversationID, m.maxTurns)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, t := range turns {
		if t.Question != "" {
			b.WriteString("UserQuestion(" + t.Question + ")\n")
		}
		if t.Report != "" {
			b.WriteString("AssistantReport(" + excerpt(t.Report) + ")\n")
		}
	}
	b.WriteString("</conversation_context>")
	return b.String(), nil
}

// SaveTurn appends the completed question/report pair to the conversation
// history.
func (m *TurnsManager) SaveTurn(ctx context.Context, st *model.PipelineState) error {
	if m.repo == nil {
		return nil
	}
	return m.repo.AppendTurn(ctx, model.ConversationTurn{
		TurnID:         uuid.NewString(),
		UserID:         st.UserID,
		ConversationID: st.ConversationID,
		Question:       st.RawQuestion,
		Report:         st.Report,
		CreatedAt:      time.Now().UTC(),
	})
}

func excerpt(s string) string {
	if len(s) <= reportExcerptLen {
		return s
	}
	return s[:reportExcerptLen] + "..."
}
