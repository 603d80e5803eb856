package retrieval

import (
	"context"
	"sync"

	"github.com/library-chat/backend/internal/storage/models"
)

// DocsFuture is a one-shot future over a retrieval result. It resolves
// exactly once and can be awaited any number of times by independent
// observers (the live stream and the persistence path) without
// re-triggering the underlying search.
type DocsFuture struct {
	once sync.Once
	done chan struct{}
	docs []models.Document
	err  error
}

func newDocsFuture() *DocsFuture {
	return &DocsFuture{done: make(chan struct{})}
}

// Resolved returns an already-resolved future. Useful in tests and for
// callers that have documents in hand.
func Resolved(docs []models.Document) *DocsFuture {
	f := newDocsFuture()
	f.resolve(docs, nil)
	return f
}

func (f *DocsFuture) resolve(docs []models.Document, err error) {
	f.once.Do(func() {
		f.docs = docs
		f.err = err
		close(f.done)
	})
}

// Await blocks until the future resolves or ctx is done. Returns the
// resolved documents; nil when retrieval failed or ctx expired first.
func (f *DocsFuture) Await(ctx context.Context) []models.Document {
	select {
	case <-ctx.Done():
		return nil
	case <-f.done:
		return f.docs
	}
}

// Err reports a retrieval failure that must abort the stream (a missing
// index collection). Valid after Await has returned; recoverable search
// failures resolve with no documents and a nil Err.
func (f *DocsFuture) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}
