package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/proplens/server/internal/pipeline/cache"
	"github.com/proplens/server/internal/pipeline/model"
	logx "github.com/proplens/server/pkg/logger"
)

// Retriever performs cached similarity search over the schema/field
// description documents. Retrieval failures are the caller's decision to
// absorb; the orchestrator degrades them to an empty context.
type Retriever struct {
	cache    *cache.Cache
	embedder Embedder
	store    Store
	topK     int
	ttl      time.Duration
}

func NewRetriever(c *cache.Cache, embedder Embedder, store Store, topK int, ttl time.Duration) *Retriever {
	if topK <= 0 {
		topK = 4
	}
	return &Retriever{cache: c, embedder: embedder, store: store, topK: topK, ttl: ttl}
}

// Retrieve returns up to topK snippets ranked by descending similarity. A
// cache hit returns the stored sequence verbatim.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]model.Snippet, error) {
	key := fmt.Sprintf("%s|k=%d", question, r.topK)

	var snippets []model.Snippet
	if r.cache.GetJSON(ctx, cache.NSSimilarity, key, &snippets) {
		logx.Debug().Int("snippets", len(snippets)).Msg("retrieval cache hit")
		return snippets, nil
	}

	embedding, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	snippets, err = r.store.Search(ctx, embedding, r.topK)
	if err != nil {
		return nil, err
	}
	if len(snippets) > r.topK {
		snippets = snippets[:r.topK]
	}

	r.cache.SetJSON(ctx, cache.NSSimilarity, key, snippets, r.ttl)
	return snippets, nil
}
