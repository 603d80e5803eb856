package models

import "time"

// Document is one retrieved context unit. Produced once per request by the
// retriever and shared read-only by the generation and persistence paths.
type Document struct {
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
	Score    float32          `json:"score,omitempty"`
}

type DocumentMetadata struct {
	Source  string `json:"source"`
	Title   string `json:"title,omitempty"`
	Library string `json:"library,omitempty"`
	Author  string `json:"author,omitempty"`
	Type    string `json:"type"`
}

// AnswerRecord is the persisted result of a single-mode, non-private chat.
// Immutable once written.
type AnswerRecord struct {
	ID         string
	Question   string
	Answer     string
	Collection string
	Sources    []Document
	History    []HistoryTurn
	ClientHash string
	CreatedAt  time.Time
}

// HistoryTurn is one prior question/answer exchange supplied by the client.
type HistoryTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
