// Package monitor implements Monitor Mode: a straight pass-through to the
// original vendor endpoint that logs both directions for fixture capture,
// per spec.md §4.6. The translator is bypassed entirely; SPEC_FULL.md §6's
// supplement additionally writes captured request/response pairs as
// newline-delimited JSON fixtures after redacting dynamic ids.
package monitor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/sjson"
)

// Handler proxies requests unchanged to the configured vendor endpoint.
type Handler struct {
	vendorBaseURL string
	apiKey        string
	client        *http.Client
	logger        *slog.Logger

	mu         sync.Mutex
	fixtureOut *os.File
}

// New builds a Handler writing fixtures to ~/.claudish/fixtures/<timestamp>.jsonl.
func New(vendorBaseURL, apiKey, baseDir string, logger *slog.Logger) (*Handler, error) {
	dir := filepath.Join(baseDir, "fixtures")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create fixtures dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d.jsonl", time.Now().UnixNano()))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open fixture file: %w", err)
	}

	return &Handler{
		vendorBaseURL: vendorBaseURL,
		apiKey:        apiKey,
		client:        &http.Client{},
		logger:        logger,
		fixtureOut:    f,
	}, nil
}

// Close releases the fixture file handle.
func (h *Handler) Close() error {
	return h.fixtureOut.Close()
}

type fixtureRecord struct {
	Timestamp string          `json:"timestamp"`
	Request   json.RawMessage `json:"request"`
	Response  json.RawMessage `json:"response"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, h.vendorBaseURL+r.URL.Path, bytes.NewReader(body))
	if err != nil {
		http.Error(w, "failed to build upstream request", http.StatusInternalServerError)
		return
	}
	upstreamReq.Header = r.Header.Clone()
	if h.apiKey != "" {
		upstreamReq.Header.Set("x-api-key", h.apiKey)
	}

	resp, err := h.client.Do(upstreamReq)
	if err != nil {
		http.Error(w, "failed to reach vendor endpoint", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, v := range resp.Header {
		for _, vv := range v {
			w.Header().Add(k, vv)
		}
	}
	w.WriteHeader(resp.StatusCode)

	respBody := h.copyAndCapture(w, resp.Body)

	h.recordFixture(body, respBody)
}

// copyAndCapture streams resp.Body to w chunk-by-chunk, flushing after each
// read so a streaming vendor response reaches the client in real time
// (spec.md §4.6's "straight pass-through"), while a tee also buffers the
// full bytes for recordFixture.
func (h *Handler) copyAndCapture(w http.ResponseWriter, body io.Reader) []byte {
	flusher, _ := w.(http.Flusher)

	var captured bytes.Buffer
	reader := bufio.NewReader(io.TeeReader(body, &captured))

	buf := make([]byte, 32*1024)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			break
		}
	}

	return captured.Bytes()
}

// recordFixture appends the request/response pair as one JSONL record, per
// SPEC_FULL.md §6's storage-mechanism supplement. A JSON response body has
// its top-level "id" and "message.id" fields replaced with sjson; other ids
// (such as tool ids) are kept. A response body that is not JSON (an SSE
// stream) is stored unredacted as a single JSON string.
func (h *Handler) recordFixture(reqBody, respBody []byte) {
	var redactedResp []byte
	if json.Valid(respBody) {
		r, err := redactDynamicIDs(respBody)
		if err != nil {
			h.logger.Warn("failed to redact fixture response", "error", err)
			r = respBody
		}
		redactedResp = r
	} else {
		redactedResp, _ = json.Marshal(string(respBody))
	}

	rec := fixtureRecord{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Request:   reqBody,
		Response:  redactedResp,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		h.logger.Warn("failed to marshal fixture record", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.fixtureOut.Write(append(line, '\n')); err != nil {
		h.logger.Warn("failed to write fixture record", "error", err)
	}
}

var redactedFields = []string{"id", "message.id"}

func redactDynamicIDs(body []byte) ([]byte, error) {
	out := body

	for _, field := range redactedFields {
		redacted, err := sjson.SetBytes(out, field, "redacted")
		if err != nil {
			continue
		}
		out = redacted
	}

	return out, nil
}
