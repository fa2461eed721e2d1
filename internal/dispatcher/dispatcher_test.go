package dispatcher

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claudish/claudish/internal/stream"
)

// fakeBackend serves a fixed sequence of OpenAI-style SSE chunks, the
// minimal shape the Streaming State Machine needs to exercise the full
// dispatcher pipeline end to end.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		flusher := w.(http.Flusher)

		lines := []string{
			`{"id":"chatcmpl-1","model":"test-model","choices":[{"index":0,"delta":{"content":"Hi"},"finish_reason":null}]}`,
			`{"id":"chatcmpl-1","model":"test-model","choices":[{"index":0,"delta":{"content":" there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2}}`,
		}

		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
}

func TestDispatcher_ServeHTTP_StreamsTranslatedEvents(t *testing.T) {
	backend := fakeBackend(t)
	defer backend.Close()

	t.Setenv("CLAUDISH_BASE_URL", backend.URL)

	d := New(slog.Default(), 0, 8192, stream.ReasoningAsText)
	defer d.cache.Stop()

	body := `{
		"model": "test-model",
		"max_tokens": 100,
		"messages": [{"role": "user", "content": "hello"}]
	}`

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	d.ServeHTTP(rec, req)

	resp := rec.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	var eventNames []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			eventNames = append(eventNames, strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		}
	}

	assert.Contains(t, eventNames, "message_start")
	assert.Contains(t, eventNames, "content_block_start")
	assert.Contains(t, eventNames, "content_block_delta")
	assert.Contains(t, eventNames, "content_block_stop")
	assert.Contains(t, eventNames, "message_delta")
	assert.Contains(t, eventNames, "message_stop")
}

func TestDispatcher_ServeHTTP_RejectsMalformedJSON(t *testing.T) {
	d := New(slog.Default(), 0, 8192, stream.ReasoningAsText)
	defer d.cache.Stop()

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()

	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatcher_ServeHTTP_RejectsEmptyMessages(t *testing.T) {
	d := New(slog.Default(), 0, 8192, stream.ReasoningAsText)
	defer d.cache.Stop()

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"x","messages":[]}`))
	rec := httptest.NewRecorder()

	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// danglingBackend writes one content delta, never a finish_reason or
// "data: [DONE]", and closes the connection — simulating a dropped upstream
// connection mid-response.
func danglingBackend(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", `{"id":"chatcmpl-1","model":"test-model","choices":[{"index":0,"delta":{"content":"Hi"},"finish_reason":null}]}`)
		flusher.Flush()
	}))
}

func TestDispatcher_ServeHTTP_BackendDisconnectMidStream_EmitsErrorAndMessageStop(t *testing.T) {
	backend := danglingBackend(t)
	defer backend.Close()

	t.Setenv("CLAUDISH_BASE_URL", backend.URL)

	d := New(slog.Default(), 0, 8192, stream.ReasoningAsText)
	defer d.cache.Stop()

	body := `{
		"model": "test-model",
		"max_tokens": 100,
		"messages": [{"role": "user", "content": "hello"}]
	}`

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	d.ServeHTTP(rec, req)

	resp := rec.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	var eventNames []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			eventNames = append(eventNames, strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		}
	}

	assert.Contains(t, eventNames, "content_block_delta")
	assert.Contains(t, eventNames, "error")
	assert.Contains(t, eventNames, "message_stop")
	require.Equal(t, "message_stop", eventNames[len(eventNames)-1], "message_stop must be the terminal event")
}

func TestDispatcher_ServeHTTP_MapsBackendErrorStatus(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"rate limited"}`)
	}))
	defer backend.Close()

	t.Setenv("CLAUDISH_BASE_URL", backend.URL)

	d := New(slog.Default(), 0, 8192, stream.ReasoningAsText)
	defer d.cache.Stop()

	body := `{"model":"test-model","max_tokens":100,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	d.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}
