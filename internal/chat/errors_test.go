package chat

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestTranslateIndexNotFound(t *testing.T) {
	err := fmt.Errorf("collection %q: %w", "library_docs", ErrIndexNotFound)

	got := Translate(err, "library_docs", true)

	assert.Equal(t, KindIndexNotFound, got.Kind)
	assert.Contains(t, got.Message, "does not exist")
	assert.Contains(t, got.Message, "site administrator")
}

func TestTranslateStructuredQuotaError(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 429, Message: "insufficient_quota"}
	err := fmt.Errorf("completion stream failed: %w", apiErr)

	got := Translate(err, "library_docs", true)

	assert.Equal(t, KindQuotaExceeded, got.Kind)
	assert.Contains(t, got.Message, "usage quota")
}

func TestTranslateStructuredNonQuotaError(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 500, Message: "server error"}
	err := fmt.Errorf("completion stream failed: %w", apiErr)

	got := Translate(err, "library_docs", true)

	assert.Equal(t, KindGeneric, got.Kind)
}

func TestTranslateQuotaSubstringFallback(t *testing.T) {
	tests := []string{
		"request failed with status 429",
		"you have exceeded your quota",
		"Rate limit reached for model",
	}

	for _, msg := range tests {
		t.Run(msg, func(t *testing.T) {
			got := Translate(errors.New(msg), "library_docs", false)
			assert.Equal(t, KindQuotaExceeded, got.Kind)
		})
	}
}

func TestTranslateGenericPassesMessageThrough(t *testing.T) {
	err := errors.New("connection refused")

	got := Translate(err, "library_docs", true)

	assert.Equal(t, KindGeneric, got.Kind)
	assert.Equal(t, "connection refused", got.Message)
}

func TestTranslateNilError(t *testing.T) {
	got := Translate(nil, "library_docs", true)

	assert.Equal(t, KindUnknown, got.Kind)
	assert.Equal(t, "An unknown error occurred", got.Message)
}
