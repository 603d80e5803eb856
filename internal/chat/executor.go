package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/library-chat/backend/internal/llm"
	"github.com/library-chat/backend/internal/storage/models"
	"github.com/library-chat/backend/pkg/config"
	"github.com/library-chat/backend/pkg/logger"
)

const (
	ModelTagA = "A"
	ModelTagB = "B"
)

// TokenStreamer drives one generation call, invoking onToken for every
// delta and returning the full accumulated text. Satisfied by llm.Client.
type TokenStreamer interface {
	StreamCompletion(ctx context.Context, req llm.StreamRequest, onToken func(string) error) (string, error)
}

// DocsProvider is the retrieval future's read side: Await may be called any
// number of times by independent observers without re-triggering retrieval,
// and Err is valid once Await has returned.
type DocsProvider interface {
	Await(ctx context.Context) []models.Document
	Err() error
}

// EventSink receives the non-terminal stream events the executor produces.
// Satisfied by sse.Writer; terminal events stay with the handler.
type EventSink interface {
	SendToken(token, model string) error
	SendSourceDocs(docs []models.Document, model string) error
}

// Executor runs the generation side of the pipeline: one invocation in
// single mode, two concurrent tagged invocations in comparison mode.
type Executor struct {
	streamer TokenStreamer
	sink     EventSink
	defaults config.LLMConfig
}

func NewExecutor(streamer TokenStreamer, sink EventSink, defaults config.LLMConfig) *Executor {
	return &Executor{
		streamer: streamer,
		sink:     sink,
		defaults: defaults,
	}
}

// RunSingle awaits retrieval, emits the sourceDocs frame, then streams one
// generation call with the configured model. Returns the full answer text
// for persistence.
func (e *Executor) RunSingle(ctx context.Context, req *Request, docs DocsProvider) (string, error) {
	retrieved := docs.Await(ctx)
	if err := docs.Err(); err != nil {
		return "", err
	}

	if err := e.sink.SendSourceDocs(retrieved, ""); err != nil {
		return "", fmt.Errorf("failed to send sources: %w", err)
	}

	streamReq := llm.StreamRequest{
		Model:       e.defaults.Model,
		Temperature: e.defaults.Temperature,
		MaxTokens:   e.defaults.MaxTokens,
		Question:    req.SanitizedQuestion,
		History:     FormatHistory(req.History),
		Context:     FormatContext(retrieved),
	}

	answer, err := e.streamer.StreamCompletion(ctx, streamReq, func(token string) error {
		return e.sink.SendToken(token, "")
	})
	if err != nil {
		return "", err
	}

	return answer, nil
}

// RunComparison streams two concurrently running generation calls against
// the same retrieved context, each under its model tag. Both invocations
// are always joined; if either fails, the other still runs to completion
// and both outcomes are logged before the first failure is returned.
// After the join, the sourceDocs frame is emitted once per tag.
func (e *Executor) RunComparison(ctx context.Context, req *Request, docs DocsProvider) error {
	retrieved := docs.Await(ctx)
	if err := docs.Err(); err != nil {
		return err
	}

	history := FormatHistory(req.History)
	contextText := FormatContext(retrieved)

	sides := []struct {
		tag         string
		model       string
		temperature float32
	}{
		{ModelTagA, req.ModelA, req.TemperatureA},
		{ModelTagB, req.ModelB, req.TemperatureB},
	}

	errs := make([]error, len(sides))

	var wg sync.WaitGroup
	for i, side := range sides {
		wg.Add(1)
		go func(i int, tag, model string, temperature float32) {
			defer wg.Done()

			streamReq := llm.StreamRequest{
				Model:       model,
				Temperature: temperature,
				MaxTokens:   e.defaults.MaxTokens,
				Question:    req.SanitizedQuestion,
				History:     history,
				Context:     contextText,
			}

			_, err := e.streamer.StreamCompletion(ctx, streamReq, func(token string) error {
				// Whitespace-only tokens add visual noise in a
				// side-by-side view.
				if strings.TrimSpace(token) == "" {
					return nil
				}
				return e.sink.SendToken(token, tag)
			})
			errs[i] = err
		}(i, side.tag, side.model, side.temperature)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			logger.Error("Comparison invocation failed",
				zap.String("model_tag", sides[i].tag),
				zap.String("model", sides[i].model),
				zap.Error(err),
			)
		}
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	for _, tag := range []string{ModelTagA, ModelTagB} {
		if err := e.sink.SendSourceDocs(retrieved, tag); err != nil {
			return fmt.Errorf("failed to send sources for model %s: %w", tag, err)
		}
	}

	return nil
}

// FormatContext renders retrieved documents as numbered context blocks for
// the generation prompt.
func FormatContext(docs []models.Document) string {
	if len(docs) == 0 {
		return "No supporting documents found."
	}

	var builder strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&builder, "[Source %d] %s", i+1, doc.Metadata.Source)
		if doc.Metadata.Author != "" {
			fmt.Fprintf(&builder, " by %s", doc.Metadata.Author)
		}
		builder.WriteString("\n")
		builder.WriteString(doc.Content)
		builder.WriteString("\n\n")
	}
	return builder.String()
}
