package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/library-chat/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.InitSchema())
	return client
}

func TestInsertAndReadBack(t *testing.T) {
	client := newTestClient(t)

	record := &models.AnswerRecord{
		ID:         "rec-1",
		Question:   "What is meditation?",
		Answer:     "Inner stillness.",
		Collection: "whole_library",
		Sources: []models.Document{
			{Content: "excerpt", Metadata: models.DocumentMetadata{Source: "a.pdf"}},
		},
		History:    []models.HistoryTurn{{Question: "prior q", Answer: "prior a"}},
		ClientHash: "hash-1",
		CreatedAt:  time.Now(),
	}

	require.NoError(t, client.InsertAnswer(record))

	records, err := client.GetAnswerHistory("hash-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "rec-1", records[0].ID)
	assert.Equal(t, "Inner stillness.", records[0].Answer)
	require.Len(t, records[0].Sources, 1)
	assert.Equal(t, "a.pdf", records[0].Sources[0].Metadata.Source)
}

func TestHistoryScopedToClient(t *testing.T) {
	client := newTestClient(t)

	for i, hash := range []string{"hash-a", "hash-a", "hash-b"} {
		require.NoError(t, client.InsertAnswer(&models.AnswerRecord{
			ID:         "rec-" + string(rune('0'+i)),
			Question:   "q",
			Answer:     "a",
			Collection: "whole_library",
			ClientHash: hash,
			CreatedAt:  time.Now(),
		}))
	}

	records, err := client.GetAnswerHistory("hash-a", 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = client.GetAnswerHistory("hash-b", 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestHistoryOrderedNewestFirstWithLimit(t *testing.T) {
	client := newTestClient(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, client.InsertAnswer(&models.AnswerRecord{
			ID:         "rec-" + string(rune('0'+i)),
			Question:   "q",
			Answer:     "a",
			Collection: "whole_library",
			ClientHash: "hash",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := client.GetAnswerHistory("hash", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec-2", records[0].ID)
	assert.Equal(t, "rec-1", records[1].ID)
}

func TestHistoryToleratesCorruptSources(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.InsertAnswer(&models.AnswerRecord{
		ID:         "rec-1",
		Question:   "q",
		Answer:     "a",
		Collection: "whole_library",
		Sources:    []models.Document{{Content: "excerpt"}},
		ClientHash: "hash",
		CreatedAt:  time.Now(),
	}))

	_, err := client.db.Exec("UPDATE answers SET sources = '{broken' WHERE id = ?", "rec-1")
	require.NoError(t, err)

	records, err := client.GetAnswerHistory("hash", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "a", records[0].Answer)
	assert.Empty(t, records[0].Sources)
}

func TestHistoryEmptyForUnknownClient(t *testing.T) {
	client := newTestClient(t)

	records, err := client.GetAnswerHistory("nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
