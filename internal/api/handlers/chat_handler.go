package handlers

import (
	"bufio"
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/library-chat/backend/internal/chat"
	"github.com/library-chat/backend/internal/metrics"
	"github.com/library-chat/backend/internal/retrieval"
	"github.com/library-chat/backend/internal/sse"
	"github.com/library-chat/backend/internal/storage/models"
	"github.com/library-chat/backend/pkg/config"
	"github.com/library-chat/backend/pkg/logger"
	"github.com/library-chat/backend/pkg/retry"
	"github.com/library-chat/backend/pkg/utils"
)

const (
	keepAliveInterval = 15 * time.Second
	historyPageLimit  = 50
	persistAttempts   = 3
)

// AnswerStore persists completed exchanges. Satisfied by sqlite.Client.
type AnswerStore interface {
	InsertAnswer(record *models.AnswerRecord) error
	GetAnswerHistory(clientHash string, limit int) ([]models.AnswerRecord, error)
}

type ChatHandler struct {
	streamer      chat.TokenStreamer
	retriever     *retrieval.Retriever
	store         AnswerStore
	site          config.SiteConfig
	llmCfg        config.LLMConfig
	indexName     string
	apiKeyPresent bool
	retryCfg      retry.Config
}

func NewChatHandler(
	streamer chat.TokenStreamer,
	retriever *retrieval.Retriever,
	store AnswerStore,
	site config.SiteConfig,
	llmCfg config.LLMConfig,
	indexName string,
) *ChatHandler {
	return &ChatHandler{
		streamer:  streamer,
		retriever: retriever,
		store:     store,
		site:      site,
		llmCfg:    llmCfg,
		indexName: indexName,
		apiKeyPresent: llmCfg.APIKey != "",
		retryCfg: retry.Config{
			MaxAttempts:    persistAttempts,
			InitialDelay:   200 * time.Millisecond,
			MaxDelay:       2 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
	}
}

// HandleChat runs the full pipeline for one question: validate, kick off
// retrieval, then stream generation events until a terminal done or error
// record.
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	req, err := chat.ParseRequest(c.Body(), h.site)
	if err != nil {
		return badRequest(c, err)
	}

	filter := chat.BuildFilter(req.Collection, req.MediaTypes, h.site)

	topK := req.SourceCount
	if req.IsComparison() && req.UseExtraSources {
		topK *= 2
	}

	// Retrieval starts before the SSE stream opens so the similarity
	// search overlaps connection setup. The stream outlives the fiber
	// handler, so it cannot borrow the request context.
	streamCtx := context.Background()
	future := h.retriever.Retrieve(streamCtx, req.SanitizedQuestion, filter, topK)

	clientHash := utils.Fingerprint(c.IP())
	mode := "single"
	if req.IsComparison() {
		mode = "comparison"
	}

	logger.Info("Chat stream starting",
		zap.String("mode", mode),
		zap.String("collection", req.Collection),
		zap.Int("topK", topK),
	)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache, no-transform")
	c.Set(fiber.HeaderConnection, "keep-alive")

	started := time.Now()

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		sw := sse.NewWriter(w)
		defer sw.Close()

		stopKeepAlive := make(chan struct{})
		defer close(stopKeepAlive)
		go func() {
			ticker := time.NewTicker(keepAliveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-stopKeepAlive:
					return
				case <-ticker.C:
					sw.KeepAlive()
				}
			}
		}()

		exec := chat.NewExecutor(h.streamer, sw, h.llmCfg)

		if req.IsComparison() {
			err := exec.RunComparison(streamCtx, req, future)
			h.finishStream(sw, mode, started, err)
			return
		}

		answer, err := exec.RunSingle(streamCtx, req, future)
		if err != nil {
			h.finishStream(sw, mode, started, err)
			return
		}

		if !req.PrivateSession {
			h.persistAnswer(sw, req, answer, future, clientHash)
		}

		h.finishStream(sw, mode, started, nil)
	}))

	return nil
}

// persistAnswer writes the completed exchange and emits its record id. The
// answer has already been streamed, so a write failure is logged and
// counted but never surfaces as a stream error.
func (h *ChatHandler) persistAnswer(sw *sse.Writer, req *chat.Request, answer string, future *retrieval.DocsFuture, clientHash string) {
	record := &models.AnswerRecord{
		ID:         uuid.New().String(),
		Question:   req.Question,
		Answer:     answer,
		Collection: req.Collection,
		Sources:    future.Await(context.Background()),
		History:    req.History,
		ClientHash: clientHash,
		CreatedAt:  time.Now(),
	}

	err := retry.Do(context.Background(), h.retryCfg, func() error {
		return h.store.InsertAnswer(record)
	})
	if err != nil {
		metrics.PersistFailures.Inc()
		logger.Error("Failed to persist answer after retries",
			zap.String("answer_id", record.ID),
			zap.Error(err),
		)
		return
	}

	sw.SendDocID(record.ID)
}

// finishStream writes the terminal record and observes the outcome.
func (h *ChatHandler) finishStream(sw *sse.Writer, mode string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		t := chat.Translate(err, h.indexName, h.apiKeyPresent)
		status = t.Kind
		sw.SendError(t.Message)
	} else {
		sw.SendDone()
	}

	metrics.QueryTotal.WithLabelValues(mode, status).Inc()
	metrics.StreamDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
}

// GetHistory returns the recorded exchanges for one client id.
func (h *ChatHandler) GetHistory(c *fiber.Ctx) error {
	clientID := c.Query("clientId")
	if clientID == "" {
		return badRequest(c, errors.New("clientId query parameter is required"))
	}

	limit := historyPageLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return badRequest(c, errors.New("limit must be a positive integer"))
		}
		if n < limit {
			limit = n
		}
	}

	records, err := h.store.GetAnswerHistory(utils.Fingerprint(clientID), limit)
	if err != nil {
		logger.Error("Failed to load answer history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	if records == nil {
		records = []models.AnswerRecord{}
	}

	return c.JSON(fiber.Map{"history": records})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
	})
}
