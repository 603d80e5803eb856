package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/library-chat/backend/pkg/circuitbreaker"
	"github.com/library-chat/backend/pkg/logger"
	"github.com/library-chat/backend/pkg/retry"
)

const systemPrompt = `You are a helpful assistant answering questions about a spiritual library.

Your responses must:
1. Be grounded ONLY in the provided library excerpts
2. Cite sources using [Source N] notation
3. Acknowledge when the excerpts do not cover the question
4. Match the tone of the source material

Be warm, accurate and concise.`

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// StreamRequest is one generation invocation. Model and Temperature
// override the client defaults when set; comparison mode sets them per
// side.
type StreamRequest struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Question    string
	History     string
	Context     string
}

func NewClient(apiKey, model, embeddingModel string, temperature float32, maxTokens int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
		maxTokens:      maxTokens,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

// StreamCompletion runs one streaming generation call, forwarding every
// token delta to onToken as it arrives and returning the accumulated full
// text. The call is not retried: tokens already forwarded cannot be
// unsent.
func (c *Client) StreamCompletion(ctx context.Context, req StreamRequest, onToken func(string) error) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(req),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to open completion stream: %w", err)
	}
	defer stream.Close()

	var answer strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return answer.String(), fmt.Errorf("completion stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		answer.WriteString(delta)
		if err := onToken(delta); err != nil {
			return answer.String(), fmt.Errorf("token delivery failed: %w", err)
		}
	}

	logger.Debug("Completion stream finished",
		zap.String("model", model),
		zap.Int("answer_length", answer.Len()),
	)

	return answer.String(), nil
}

func buildUserPrompt(req StreamRequest) string {
	var builder strings.Builder

	if req.History != "" {
		builder.WriteString("Conversation so far:\n")
		builder.WriteString(req.History)
		builder.WriteString("\n\n")
	}

	builder.WriteString("Library excerpts:\n")
	builder.WriteString(req.Context)
	builder.WriteString("\n\nQuestion: ")
	builder.WriteString(req.Question)

	return builder.String()
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)

			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}

			if len(resp.Data) == 0 {
				return errors.New("embedding response contained no data")
			}

			embedding = make([]float32, len(resp.Data[0].Embedding))
			copy(embedding, resp.Data[0].Embedding)

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return embedding, nil
}
