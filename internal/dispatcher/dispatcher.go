package dispatcher

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"

	"github.com/claudish/claudish/internal/adapter"
	"github.com/claudish/claudish/internal/anchor"
	"github.com/claudish/claudish/internal/openaiwire"
	"github.com/claudish/claudish/internal/providers"
	"github.com/claudish/claudish/internal/stream"
	"github.com/claudish/claudish/internal/transform"
	"github.com/claudish/claudish/internal/usage"
)

// Dispatcher is the per-request entry point for POST /v1/messages. Grounded
// on the teacher's ProxyHandler.
type Dispatcher struct {
	registry *providers.Registry
	prober   *providers.Prober
	machine  *stream.Machine
	cache    *usage.Cache
	totals   *usage.Totals
	logger   *slog.Logger
	client   *http.Client
	policy   stream.ReasoningPolicy

	healthMu      sync.Mutex
	healthChecked map[string]bool
}

// New builds a Dispatcher. port is used only to name SessionTokenTotals'
// status file; contextWindow is the fixed window that file reports. Local
// providers get a health probe on first use; Prober.ContextWindow is not
// called, so the window is never replaced by a discovered value.
func New(logger *slog.Logger, port, contextWindow int, policy stream.ReasoningPolicy) *Dispatcher {
	return &Dispatcher{
		registry:      providers.NewRegistry(),
		prober:        providers.NewProber(),
		machine:       stream.NewMachine(logger),
		cache:         usage.NewCache(),
		totals:        usage.NewTotals(port, contextWindow),
		logger:        logger,
		client:        &http.Client{},
		policy:        policy,
		healthChecked: make(map[string]bool),
	}
}

// Close releases the cache sweep goroutine and removes the status file.
func (d *Dispatcher) Close(port int) {
	d.cache.Stop()
	usage.RemoveStatusFile(port)
}

// ServeHTTP handles POST /v1/messages.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		d.writeJSONError(w, NewError(ErrValidation, "failed to read request body: %v", err))
		return
	}

	var req anchor.Request
	if err := json.Unmarshal(body, &req); err != nil {
		d.writeJSONError(w, NewError(ErrValidation, "malformed request body: %v", err))
		return
	}

	result, err := transform.Request(&req, body)
	if err != nil {
		d.writeJSONError(w, NewError(ErrValidation, "%v", err))
		return
	}
	if len(result.DroppedParams) > 0 {
		d.logger.Debug("dropped unknown request fields", "fields", result.DroppedParams)
	}

	resolved, err := d.registry.Resolve(req.Model)
	if err != nil {
		d.writeJSONError(w, NewError(ErrConnection, "%v", err))
		return
	}
	result.Request.Model = resolved.Model

	if resolved.Descriptor.IsLocal {
		if err := d.ensureHealthy(r.Context(), resolved); err != nil {
			d.writeJSONError(w, NewError(ErrConnection, "%v", err))
			return
		}
	}

	a := adapter.Select(resolved.Model, resolved.Descriptor.Capabilities)
	a.PrepareRequest(result.Request, resolved.Descriptor.Capabilities)

	payload, err := json.Marshal(result.Request)
	if err != nil {
		d.writeJSONError(w, NewError(ErrValidation, "failed to encode upstream request: %v", err))
		return
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost,
		resolved.BaseURL+resolved.Descriptor.APIPath, bytes.NewReader(payload))
	if err != nil {
		d.writeJSONError(w, NewError(ErrAPI, "failed to build upstream request: %v", err))
		return
	}
	upstreamReq.Header.Set("Content-Type", "application/json")
	if key := providers.APIKey(resolved.Descriptor); key != "" {
		upstreamReq.Header.Set("Authorization", "Bearer "+key)
	}

	upstreamResp, err := d.client.Do(upstreamReq)
	if err != nil {
		d.writeJSONError(w, NewError(ErrConnection, "failed to reach backend: %v", err))
		return
	}
	defer upstreamResp.Body.Close()

	if upstreamResp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(upstreamResp.Body)
		d.writeJSONError(w, MapBackendError(upstreamResp.StatusCode, errBody))
		return
	}

	cacheable := usage.EstimateCacheableTokens(req.System.Flatten(), mustMarshal(req.Tools))
	firstUser := firstUserMessageText(req.Messages)
	sessionID := sessionIDFromMetadata(req.Metadata)
	key := usage.ConversationKey(req.Model, sessionID, firstUser)
	cacheResult := d.cache.Observe(key, cacheable)

	d.streamResponse(w, upstreamResp.Body, upstreamResp.Header.Get("Content-Encoding"), a, cacheResult)
}

func (d *Dispatcher) ensureHealthy(ctx context.Context, resolved providers.Resolved) error {
	d.healthMu.Lock()
	checked := d.healthChecked[resolved.Descriptor.Name]
	d.healthMu.Unlock()

	if checked {
		return nil
	}

	if err := d.prober.HealthCheck(ctx, resolved.Descriptor, resolved.BaseURL); err != nil {
		return err
	}

	d.healthMu.Lock()
	d.healthChecked[resolved.Descriptor.Name] = true
	d.healthMu.Unlock()

	return nil
}

// streamResponse drives the Streaming State Machine over the backend's SSE
// body, writing translated Anchor events to w. Grounded on the teacher's
// handleStreamingResponse bufio.Scanner loop, generalized to typed chunks
// and wrapped with brotli/gzip decompression per the teacher's
// decompressReader.
func (d *Dispatcher) streamResponse(w http.ResponseWriter, body io.Reader, contentEncoding string, a adapter.Adapter, cacheResult usage.CacheResult) {
	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	reader, err := decompressReader(body, contentEncoding)
	if err != nil {
		d.logger.Error("failed to set up decompression", "error", err)
		return
	}

	state := stream.New(uuid.NewString(), "", d.policy)

	switch cacheResult.Phase {
	case usage.PhaseCreate:
		tokens := cacheResult.CacheCreationTokens
		state.SetCachePhase(&tokens, nil)
	case usage.PhaseRead:
		tokens := cacheResult.CacheReadTokens
		state.SetCachePhase(nil, &tokens)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// writeMu serializes every write to w between the ping goroutine and this
	// loop, so a ping tick can never interleave bytes into a content_block_delta
	// the scanner loop is mid-way through writing (spec.md §5).
	var writeMu sync.Mutex
	write := func(b []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return writeFlush(w, flusher, b)
	}

	go stream.RunPingLoop(ctx, state, write)

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if state.Closed() {
			break
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		if data == "[DONE]" {
			for _, ev := range d.machine.StepDone(state) {
				if write(stream.FormatSSE(ev)) != nil {
					return
				}
			}
			break
		}

		var chunk openaiwire.Chunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			d.logger.Warn("failed to unmarshal backend chunk", "error", err)
			continue
		}

		for i := range chunk.Choices {
			a.TransformDelta(&chunk.Choices[i].Delta)
		}

		for _, ev := range d.machine.Step(state, chunk) {
			if write(stream.FormatSSE(ev)) != nil {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		d.logger.Warn("backend stream scan error", "error", err)
	}

	// The backend closed its body without a finish_reason or a [DONE]
	// sentinel (e.g. a dropped connection); state is still open, so no
	// message_stop has been emitted yet. Synthesize the terminal error +
	// message_stop pair spec.md §7 requires for a mid-stream failure.
	if !state.Closed() {
		msg := "backend closed the stream before completing the response"
		if err := scanner.Err(); err != nil {
			msg = fmt.Sprintf("backend stream ended with an error: %v", err)
		}
		for _, ev := range d.machine.StepStreamError(state, msg) {
			if write(stream.FormatSSE(ev)) != nil {
				break
			}
		}
	}

	input, output := state.FinalUsage()
	d.totals.Record(input, output)
}

func writeFlush(w http.ResponseWriter, flusher http.Flusher, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// decompressReader wraps body according to the upstream's
// Content-Encoding, supporting gzip and brotli per the teacher's
// decompressReader.
func decompressReader(body io.Reader, encoding string) (io.Reader, error) {
	switch encoding {
	case "br":
		return brotli.NewReader(body), nil
	case "gzip":
		return gzip.NewReader(body)
	default:
		return body, nil
	}
}

func (d *Dispatcher) writeJSONError(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Type.HTTPStatus())

	_ = json.NewEncoder(w).Encode(map[string]any{
		"type": "error",
		"error": anchor.ErrorPayload{
			Type:    string(e.Type),
			Message: e.Message,
		},
	})
}

func mustMarshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func firstUserMessageText(msgs []anchor.Message) string {
	for _, m := range msgs {
		if m.Role != "user" {
			continue
		}
		var text strings.Builder
		for _, b := range m.Content {
			if b.Type == anchor.BlockText {
				text.WriteString(b.Text)
			}
		}
		return text.String()
	}
	return ""
}

func sessionIDFromMetadata(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if id, ok := metadata["user_id"].(string); ok {
		return id
	}
	return ""
}
