package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/library-chat/backend/internal/storage/models"
)

func newTestWriter() (*Writer, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewWriter(bufio.NewWriter(&buf)), &buf
}

func decodeEvents(t *testing.T, raw string) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	for _, record := range strings.Split(raw, "\n\n") {
		record = strings.TrimSpace(record)
		if record == "" || strings.HasPrefix(record, ":") {
			continue
		}
		require.True(t, strings.HasPrefix(record, "data: "), "record %q", record)
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(record, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func TestSendTokenFraming(t *testing.T) {
	w, buf := newTestWriter()

	require.NoError(t, w.SendToken("hello", ""))

	assert.Equal(t, "data: {\"token\":\"hello\"}\n\n", buf.String())
}

func TestSendTokenWithModelTag(t *testing.T) {
	w, buf := newTestWriter()

	require.NoError(t, w.SendToken("hello", "A"))

	events := decodeEvents(t, buf.String())
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0]["token"])
	assert.Equal(t, "A", events[0]["model"])
}

func TestSendSourceDocsNilBecomesEmptyArray(t *testing.T) {
	w, buf := newTestWriter()

	require.NoError(t, w.SendSourceDocs(nil, ""))

	assert.Equal(t, "data: {\"sourceDocs\":[]}\n\n", buf.String())
}

func TestSendSourceDocsEmptySetKeepsKeyWithTag(t *testing.T) {
	w, buf := newTestWriter()

	require.NoError(t, w.SendSourceDocs([]models.Document{}, "A"))

	assert.Equal(t, "data: {\"sourceDocs\":[],\"model\":\"A\"}\n\n", buf.String())
}

func TestTokenEventCarriesNoSourceDocsKey(t *testing.T) {
	w, buf := newTestWriter()

	require.NoError(t, w.SendToken("hello", ""))

	assert.NotContains(t, buf.String(), "sourceDocs")
}

func TestSendSourceDocsCarriesMetadata(t *testing.T) {
	w, buf := newTestWriter()
	docs := []models.Document{
		{Content: "text", Metadata: models.DocumentMetadata{Source: "a.pdf", Author: "Someone", Type: "text"}},
	}

	require.NoError(t, w.SendSourceDocs(docs, "B"))

	events := decodeEvents(t, buf.String())
	require.Len(t, events, 1)
	assert.Equal(t, "B", events[0]["model"])
	sourceDocs := events[0]["sourceDocs"].([]interface{})
	require.Len(t, sourceDocs, 1)
}

func TestDoneIsTerminal(t *testing.T) {
	w, _ := newTestWriter()

	require.NoError(t, w.SendDone())

	assert.ErrorIs(t, w.SendToken("late", ""), ErrStreamClosed)
	assert.ErrorIs(t, w.SendDone(), ErrStreamClosed)
}

func TestErrorIsTerminal(t *testing.T) {
	w, buf := newTestWriter()

	require.NoError(t, w.SendError("something broke"))

	assert.ErrorIs(t, w.SendDone(), ErrStreamClosed)
	events := decodeEvents(t, buf.String())
	require.Len(t, events, 1)
	assert.Equal(t, "something broke", events[0]["error"])
}

func TestKeepAliveWritesComment(t *testing.T) {
	w, buf := newTestWriter()

	require.NoError(t, w.KeepAlive())

	assert.Equal(t, ": ping\n\n", buf.String())
}

func TestKeepAliveNoOpAfterTerminal(t *testing.T) {
	w, buf := newTestWriter()

	require.NoError(t, w.SendDone())
	before := buf.String()
	require.NoError(t, w.KeepAlive())

	assert.Equal(t, before, buf.String())
}

func TestCloseIdempotentAndRejectsSends(t *testing.T) {
	w, _ := newTestWriter()

	w.Close()
	w.Close()

	assert.ErrorIs(t, w.SendToken("x", ""), ErrStreamClosed)
}

func TestEventStreamSequence(t *testing.T) {
	w, buf := newTestWriter()

	require.NoError(t, w.SendSourceDocs([]models.Document{{Content: "doc"}}, ""))
	require.NoError(t, w.SendToken("Med", ""))
	require.NoError(t, w.SendToken("itation", ""))
	require.NoError(t, w.SendDocID("abc-123"))
	require.NoError(t, w.SendDone())

	events := decodeEvents(t, buf.String())
	require.Len(t, events, 5)
	assert.Contains(t, events[0], "sourceDocs")
	assert.Equal(t, "Med", events[1]["token"])
	assert.Equal(t, "itation", events[2]["token"])
	assert.Equal(t, "abc-123", events[3]["docId"])
	assert.Equal(t, true, events[4]["done"])
}
