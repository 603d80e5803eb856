package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/library-chat/backend/internal/chat"
	"github.com/library-chat/backend/internal/storage/models"
	"github.com/library-chat/backend/pkg/logger"
)

// Embedder turns a question into a query vector. Satisfied by llm.Client.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type Client struct {
	client         client.Client
	embedder       Embedder
	collectionName string
	vectorDim      int
}

func NewClient(endpoint, collectionName string, vectorDim int, embedder Embedder) (*Client, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Vector index client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		embedder:       embedder,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

// CollectionName returns the configured index collection. Logged by the
// error translator when the collection is missing.
func (m *Client) CollectionName() string {
	return m.collectionName
}

// Search embeds the question and runs a filtered similarity search.
func (m *Client) Search(ctx context.Context, question string, filter chat.Filter, topK int) ([]models.Document, error) {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		return nil, fmt.Errorf("collection %q: %w", m.collectionName, chat.ErrIndexNotFound)
	}

	embedding, err := m.embedder.GenerateEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	expr := buildExpr(filter)

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"content", "source", "title", "library", "author", "media_type"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"embedding",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]models.Document, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			contentCol := sr.Fields.GetColumn("content")
			sourceCol := sr.Fields.GetColumn("source")
			titleCol := sr.Fields.GetColumn("title")
			libraryCol := sr.Fields.GetColumn("library")
			authorCol := sr.Fields.GetColumn("author")
			typeCol := sr.Fields.GetColumn("media_type")

			content, _ := contentCol.Get(i)
			source, _ := sourceCol.Get(i)
			title, _ := titleCol.Get(i)
			library, _ := libraryCol.Get(i)
			author, _ := authorCol.Get(i)
			mediaType, _ := typeCol.Get(i)

			results = append(results, models.Document{
				Content: content.(string),
				Metadata: models.DocumentMetadata{
					Source:  source.(string),
					Title:   title.(string),
					Library: library.(string),
					Author:  author.(string),
					Type:    mediaType.(string),
				},
				Score: sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
		zap.String("filter", expr),
	)

	return results, nil
}

// buildExpr renders the retrieval filter as a milvus boolean expression:
// a conjunction of `field in [...]` terms.
func buildExpr(filter chat.Filter) string {
	var terms []string

	if len(filter.Types) > 0 {
		terms = append(terms, inTerm("media_type", filter.Types))
	}
	if len(filter.Authors) > 0 {
		terms = append(terms, inTerm("author", filter.Authors))
	}
	if len(filter.Libraries) > 0 {
		terms = append(terms, inTerm("library", filter.Libraries))
	}

	return strings.Join(terms, " && ")
}

func inTerm(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return fmt.Sprintf("%s in [%s]", field, strings.Join(quoted, ", "))
}
