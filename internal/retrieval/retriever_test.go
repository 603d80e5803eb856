package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/library-chat/backend/internal/chat"
	"github.com/library-chat/backend/internal/storage/models"
)

type fakeSearcher struct {
	docs []models.Document
	err  error
}

func (f *fakeSearcher) Search(ctx context.Context, question string, filter chat.Filter, topK int) ([]models.Document, error) {
	return f.docs, f.err
}

func TestRetrieveSuccess(t *testing.T) {
	docs := []models.Document{{Content: "found"}}
	r := New(&fakeSearcher{docs: docs})

	future := r.Retrieve(context.Background(), "question", chat.Filter{}, 4)

	got := future.Await(context.Background())
	require.NoError(t, future.Err())
	assert.Equal(t, docs, got)
}

func TestRetrieveMissingIndexPropagatesError(t *testing.T) {
	searchErr := fmt.Errorf("collection %q: %w", "library_docs", chat.ErrIndexNotFound)
	r := New(&fakeSearcher{err: searchErr})

	future := r.Retrieve(context.Background(), "question", chat.Filter{}, 4)

	got := future.Await(context.Background())
	assert.Nil(t, got)
	assert.ErrorIs(t, future.Err(), chat.ErrIndexNotFound)
}

func TestRetrieveOtherFailuresDegradeToEmpty(t *testing.T) {
	r := New(&fakeSearcher{err: errors.New("connection reset")})

	future := r.Retrieve(context.Background(), "question", chat.Filter{}, 4)

	got := future.Await(context.Background())
	assert.Nil(t, got)
	assert.NoError(t, future.Err())
}
