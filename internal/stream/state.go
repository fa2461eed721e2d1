// Package stream implements the Streaming State Machine: the step function
// that consumes OpenAI-style SSE chunks and emits a well-formed Anchor event
// sequence. Grounded on the teacher's internal/providers/base.go
// ConvertOpenAIStyleToAnthropicStream and openai.go's block-index
// bookkeeping, restructured as a pure function per spec.md §9 ("model the
// translator as a step function State×Chunk → State×[Event]").
package stream

import "sync/atomic"

// ReasoningPolicy selects how delta.reasoning fragments are surfaced, per
// spec.md §4.3.
type ReasoningPolicy string

const (
	ReasoningAsText     ReasoningPolicy = "as_text"
	ReasoningAsThinking ReasoningPolicy = "as_thinking"
	ReasoningSuppress   ReasoningPolicy = "suppress"
)

// blockState tracks one open-or-closed content block (text or thinking).
type blockState struct {
	open  bool
	index int
}

// toolBlockState tracks one tool_use block being assembled from fragmented
// deltas, keyed by the backend's integer tool slot.
type toolBlockState struct {
	blockIndex int
	id         string
	name       string
	argChars   string
	started    bool
	closed     bool
}

// State is the per-request StreamState from spec.md §3. It is mutated only
// by the task driving the SSE loop, so the block bookkeeping needs no lock
// (spec.md §9: "encapsulate StreamState in a struct owned exclusively by one
// task"). The ping goroutine reads the closed flag concurrently, so that one
// flag is atomic.
type State struct {
	Policy ReasoningPolicy

	MessageID string
	Model     string

	nextBlockIndex int
	messageStarted bool

	textBlock     blockState
	thinkingBlock blockState
	toolBlocks    map[int]*toolBlockState
	toolOrder     []int

	inputTokensSeen  int
	outputTokensSeen int
	outputCharsSeen  int
	usageSeen        bool

	stopReason string

	cacheCreationTokens *int
	cacheReadTokens     *int

	closed atomic.Bool
}

// SetCachePhase folds the cache-accounting phase computed by
// internal/usage.Cache.Observe into the final message_delta usage, per
// spec.md §4.4. Exactly one of createTokens/readTokens should be non-nil.
func (s *State) SetCachePhase(createTokens, readTokens *int) {
	s.cacheCreationTokens = createTokens
	s.cacheReadTokens = readTokens
}

// FinalUsage reports the input/output token counts observed once the stream
// has terminated, for the caller to fold into SessionTokenTotals.
func (s *State) FinalUsage() (input, output int) {
	output = s.outputTokensSeen
	if !s.usageSeen {
		output = estimateTokens(s)
	}
	return s.inputTokensSeen, output
}

// New creates a fresh StreamState for one request lifetime.
func New(messageID, model string, policy ReasoningPolicy) *State {
	return &State{
		MessageID:  messageID,
		Model:      model,
		Policy:     policy,
		toolBlocks: make(map[int]*toolBlockState),
	}
}

// Closed reports whether the stream-level closed flag has been set, either
// by normal termination or by client disconnect.
func (s *State) Closed() bool {
	return s.closed.Load()
}

// Close marks the stream closed; every emission site checks this first, so
// once set no further writes are produced (the idempotency guard from
// spec.md §4.2 "Idempotency and safety").
func (s *State) Close() {
	s.closed.Store(true)
}
