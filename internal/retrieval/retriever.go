package retrieval

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/library-chat/backend/internal/chat"
	"github.com/library-chat/backend/internal/metrics"
	"github.com/library-chat/backend/internal/storage/models"
	"github.com/library-chat/backend/pkg/logger"
)

// Searcher is the vector-index contract. Satisfied by milvus.Client.
type Searcher interface {
	Search(ctx context.Context, question string, filter chat.Filter, topK int) ([]models.Document, error)
}

// Retriever runs the similarity search asynchronously and exposes its
// completion as a one-shot future, decoupled from token streaming.
type Retriever struct {
	searcher Searcher
}

func New(searcher Searcher) *Retriever {
	return &Retriever{searcher: searcher}
}

// Retrieve kicks off the search and returns immediately. A missing index
// collection aborts the stream via the future's error; any other search
// failure is logged and degrades to an empty document set so generation
// proceeds without sources.
func (r *Retriever) Retrieve(ctx context.Context, question string, filter chat.Filter, topK int) *DocsFuture {
	future := newDocsFuture()

	go func() {
		docs, err := r.searcher.Search(ctx, question, filter, topK)
		if err != nil {
			if errors.Is(err, chat.ErrIndexNotFound) {
				future.resolve(nil, err)
				return
			}
			logger.Error("Retrieval failed, continuing without sources",
				zap.Error(err),
				zap.Int("topK", topK),
			)
			future.resolve(nil, nil)
			return
		}
		metrics.RetrievalDocs.Observe(float64(len(docs)))
		future.resolve(docs, nil)
	}()

	return future
}
