package rewrite

import (
	"context"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"

	errx "github.com/proplens/server/internal/core/error"
	"github.com/proplens/server/internal/pipeline/cache"
	"github.com/proplens/server/internal/pipeline/email"
	"github.com/proplens/server/internal/pipeline/graph/conversations"
	"github.com/proplens/server/internal/pipeline/graph/prompts"
	"github.com/proplens/server/internal/pipeline/model"
	logx "github.com/proplens/server/pkg/logger"
)

// Rewriter disambiguates the raw question with retrieved schema context and
// the recent conversation window. The rewrite is cached by a digest of all
// of its inputs, so an identical situation within the TTL yields the
// identical rewrite.
type Rewriter struct {
	cm    einomodel.BaseChatModel
	turns *conversations.TurnsManager
	cache *cache.Cache
	ttl   time.Duration
}

func NewRewriter(cm einomodel.BaseChatModel, turns *conversations.TurnsManager, c *cache.Cache, ttl time.Duration) *Rewriter {
	return &Rewriter{cm: cm, turns: turns, cache: c, ttl: ttl}
}

func (r *Rewriter) Rewrite(ctx context.Context, conversationID, question string, snippets []model.Snippet) (string, error) {
	// Email requests keep the original wording so the recipient address
	// survives for the dispatcher verbatim.
	if email.DetectIntent(question) {
		logx.Debug().Msg("email request detected, skipping rewrite")
		return question, nil
	}

	history, err := r.turns.Window(ctx, conversationID)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logx.Warn().Err(err).Str("conversation_id", conversationID).Msg("could not load conversation window, rewriting without history")
		history = ""
	}

	contextText := model.JoinSnippets(snippets)
	cacheInput := question + "\n--\n" + contextText + "\n--\n" + history

	if cached, ok := r.cache.Get(ctx, cache.NSRewrite, cacheInput); ok {
		logx.Debug().Msg("rewrite cache hit")
		return cached, nil
	}

	msgs, err := prompts.RenderRewrite(ctx, prompts.RewriteVars{
		Context: contextText,
		History: history,
	}, question)
	if err != nil {
		return "", errx.New(errx.KindRewrite, errx.StageRewrite, "failed to render the rewrite prompt", err)
	}

	out, err := r.cm.Generate(ctx, msgs)
	if err != nil {
		return "", errx.New(errx.KindRewrite, errx.StageRewrite, "the rewrite model call failed", err)
	}

	rewritten := strings.TrimSpace(out.Content)
	if rewritten == "" {
		rewritten = question
	}

	r.cache.Set(ctx, cache.NSRewrite, cacheInput, rewritten, r.ttl)
	return rewritten, nil
}
