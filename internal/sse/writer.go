package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/library-chat/backend/internal/metrics"
	"github.com/library-chat/backend/internal/storage/models"
)

// ErrStreamClosed is returned by Send once a terminal event has been
// written or the writer has been closed.
var ErrStreamClosed = errors.New("sse stream already closed")

// Event is one server-sent-event payload. Exactly one terminal variant
// (Done or Error) is written per stream. SourceDocs is a pointer so an
// empty document set still serializes as [] instead of losing its key.
type Event struct {
	Token      string             `json:"token,omitempty"`
	SourceDocs *[]models.Document `json:"sourceDocs,omitempty"`
	Done       bool               `json:"done,omitempty"`
	Error      string             `json:"error,omitempty"`
	DocID      string             `json:"docId,omitempty"`
	Model      string             `json:"model,omitempty"`
}

// Writer owns the outbound event channel for one request. Safe for
// concurrent use; comparison mode writes tokens from two goroutines.
type Writer struct {
	w        *bufio.Writer
	mu       sync.Mutex
	terminal bool
	closed   bool
}

func NewWriter(w *bufio.Writer) *Writer {
	return &Writer{w: w}
}

// Send serializes the event as one `data: <json>` record and flushes it.
// Events after a terminal record are rejected.
func (s *Writer) Send(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal || s.closed {
		return ErrStreamClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}

	if event.Done || event.Error != "" {
		s.terminal = true
	}

	return nil
}

func (s *Writer) SendToken(token, model string) error {
	if err := s.Send(Event{Token: token, Model: model}); err != nil {
		return err
	}
	tag := model
	if tag == "" {
		tag = "single"
	}
	metrics.TokensStreamed.WithLabelValues(tag).Inc()
	return nil
}

func (s *Writer) SendSourceDocs(docs []models.Document, model string) error {
	if docs == nil {
		docs = []models.Document{}
	}
	return s.Send(Event{SourceDocs: &docs, Model: model})
}

func (s *Writer) SendDocID(id string) error {
	return s.Send(Event{DocID: id})
}

// SendDone writes the terminal success record.
func (s *Writer) SendDone() error {
	return s.Send(Event{Done: true})
}

// SendError writes the terminal error record.
func (s *Writer) SendError(message string) error {
	return s.Send(Event{Error: message})
}

// KeepAlive writes an SSE comment line. Comments are ignored by clients but
// reset load-balancer idle timeouts during slow retrieval or generation.
// No-op once the stream has terminated.
func (s *Writer) KeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal || s.closed {
		return nil
	}

	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	return s.w.Flush()
}

// Close flushes and marks the writer closed. Idempotent; reached on every
// exit path.
func (s *Writer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.w.Flush()
}
