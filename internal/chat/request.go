package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/library-chat/backend/internal/storage/models"
	"github.com/library-chat/backend/pkg/config"
)

const (
	MaxQuestionLength  = 4000
	DefaultSourceCount = 4
	MaxSourceCount     = 20
)

var (
	ErrMalformedPayload  = errors.New("Invalid request body")
	ErrInvalidQuestion   = errors.New("Invalid question: must be a string of 1-4000 characters")
	ErrInvalidCollection = errors.New("Invalid collection")
)

// Request is the inbound chat payload. A non-empty ModelA marks the
// comparison variant.
type Request struct {
	Collection     string               `json:"collection"`
	Question       string               `json:"question"`
	History        []models.HistoryTurn `json:"history"`
	PrivateSession bool                 `json:"privateSession"`
	MediaTypes     map[string]bool      `json:"mediaTypes"`
	SourceCount    int                  `json:"sourceCount"`

	ModelA          string  `json:"modelA,omitempty"`
	ModelB          string  `json:"modelB,omitempty"`
	TemperatureA    float32 `json:"temperatureA,omitempty"`
	TemperatureB    float32 `json:"temperatureB,omitempty"`
	UseExtraSources bool    `json:"useExtraSources,omitempty"`

	// SanitizedQuestion is what generation sees; Question keeps the
	// original text for persistence and audit.
	SanitizedQuestion string `json:"-"`
}

func (r *Request) IsComparison() bool {
	return r.ModelA != ""
}

// ParseRequest decodes and validates the raw body. Question length and
// collection membership are checked before any other field is trusted.
func ParseRequest(body []byte, site config.SiteConfig) (*Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}

	if len(req.Question) == 0 || len(req.Question) > MaxQuestionLength {
		return nil, ErrInvalidQuestion
	}

	if !site.HasCollection(req.Collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, req.Collection)
	}

	if req.SourceCount <= 0 {
		req.SourceCount = DefaultSourceCount
	}
	if req.SourceCount > MaxSourceCount {
		req.SourceCount = MaxSourceCount
	}

	req.SanitizedQuestion = Sanitize(req.Question)

	return &req, nil
}

// Sanitize trims the question, collapses newlines to spaces and HTML-escapes
// the result.
func Sanitize(question string) string {
	s := strings.TrimSpace(question)
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return html.EscapeString(s)
}

// FormatHistory renders prior turns as human/assistant line pairs for the
// generation prompt.
func FormatHistory(history []models.HistoryTurn) string {
	if len(history) == 0 {
		return ""
	}

	lines := make([]string, 0, len(history)*2)
	for _, turn := range history {
		lines = append(lines, "Human: "+turn.Question)
		lines = append(lines, "Assistant: "+turn.Answer)
	}
	return strings.Join(lines, "\n")
}
