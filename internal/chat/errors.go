package chat

import (
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/library-chat/backend/pkg/logger"
)

// ErrIndexNotFound marks failures caused by a missing vector index
// collection. The vector client wraps its not-found condition with it.
var ErrIndexNotFound = errors.New("vector collection not found")

const (
	KindIndexNotFound = "index_not_found"
	KindQuotaExceeded = "quota_exceeded"
	KindGeneric       = "generic"
	KindUnknown       = "unknown"

	msgIndexNotFound = "The vector index does not exist. Please contact the site administrator."
	msgQuotaExceeded = "The answering service is over its usage quota. Please notify the site administrator."
	msgUnknown       = "An unknown error occurred"
)

// Translation is the sanitized client-facing form of a pipeline failure.
type Translation struct {
	Kind    string
	Message string
}

// Translate classifies a failure from retrieval, generation or persistence
// into the client taxonomy. Full detail is logged server-side; only the
// sanitized message is returned for the terminal error event. The API key
// itself never reaches the logs, only its presence.
func Translate(err error, indexName string, apiKeyPresent bool) Translation {
	if err == nil {
		logger.Error("Stream failed with no error value")
		return Translation{Kind: KindUnknown, Message: msgUnknown}
	}

	if errors.Is(err, ErrIndexNotFound) {
		logger.Error("Vector index missing",
			zap.String("index", indexName),
			zap.Error(err),
		)
		return Translation{Kind: KindIndexNotFound, Message: msgIndexNotFound}
	}

	if isQuotaError(err) {
		logger.Error("Provider quota exceeded",
			zap.Bool("api_key_present", apiKeyPresent),
			zap.Error(err),
		)
		return Translation{Kind: KindQuotaExceeded, Message: msgQuotaExceeded}
	}

	logger.Error("Stream failed", zap.Error(err))
	return Translation{Kind: KindGeneric, Message: err.Error()}
}

// isQuotaError checks the provider's structured error first and falls back
// to message matching for wrapped or stringified provider errors.
func isQuotaError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return quotaMessage(err.Error())
}

// quotaMessage is the documented fallback: substring scan of the error text
// for quota indicators. Only consulted when no structured provider error is
// present.
func quotaMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "429") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "rate limit")
}
