// Package usage implements Usage & Cache Accounting: per-session token
// totals, conversation-keyed cache-metric estimation with a TTL sweep, and
// the on-disk status file. Grounded on the teacher's token-counting in
// internal/handlers/proxy.go; the cache state machine itself has no teacher
// equivalent and is built fresh in the teacher's mutex-guarded-map idiom
// (internal/providers.Registry).
package usage

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const (
	cacheHotWindow  = 5 * time.Minute
	cacheTTL        = 10 * time.Minute
	sweepInterval   = 60 * time.Second
	invalidationPct = 0.1 // "differs by more than a small delta" per spec.md §4.4
)

// CachePhase names the two states a conversation key can be observed in.
type CachePhase string

const (
	PhaseCreate CachePhase = "create"
	PhaseRead   CachePhase = "read"
)

// conversationCacheEntry is the ConversationCacheState record from spec.md §3.
type conversationCacheEntry struct {
	cacheableTokens int
	lastSeen        time.Time
	turnCount        int
}

// CacheResult is what Observe returns: the phase the lookup landed in and the
// token split to fold into message_delta usage.
type CacheResult struct {
	Phase                CachePhase
	CacheCreationTokens int
	CacheReadTokens      int
}

// Cache is the process-wide ConversationCacheState map, guarded by a mutex
// and swept periodically, per spec.md §5/§7.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*conversationCacheEntry

	stop chan struct{}
}

// NewCache constructs a Cache and starts its periodic eviction sweep. Stop
// must be called to release the sweep goroutine on server shutdown.
func NewCache() *Cache {
	c := &Cache{
		entries: make(map[string]*conversationCacheEntry),
		stop:    make(chan struct{}),
	}

	go c.sweepLoop()

	return c
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.lastSeen) > cacheTTL {
			delete(c.entries, key)
		}
	}
}

// Stop ends the sweep goroutine.
func (c *Cache) Stop() {
	close(c.stop)
}

// Observe runs the cache state machine from spec.md §4.4 for one request.
func (c *Cache) Observe(key string, cacheableTokens int) CacheResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, exists := c.entries[key]

	if !exists || now.Sub(entry.lastSeen) > cacheHotWindow {
		c.entries[key] = &conversationCacheEntry{
			cacheableTokens: cacheableTokens,
			lastSeen:        now,
			turnCount:        1,
		}

		return CacheResult{Phase: PhaseCreate, CacheCreationTokens: cacheableTokens}
	}

	if cacheDiffers(entry.cacheableTokens, cacheableTokens) {
		entry.cacheableTokens = cacheableTokens
		entry.lastSeen = now
		entry.turnCount = 1

		return CacheResult{Phase: PhaseCreate, CacheCreationTokens: cacheableTokens}
	}

	entry.lastSeen = now
	entry.turnCount++

	return CacheResult{Phase: PhaseRead, CacheReadTokens: cacheableTokens}
}

func cacheDiffers(stored, observed int) bool {
	if stored == 0 {
		return observed != 0
	}

	delta := stored - observed
	if delta < 0 {
		delta = -delta
	}

	return float64(delta)/float64(stored) > invalidationPct
}

// ConversationKey derives the Conversation key from spec.md §4.4: model plus
// either an externally provided session id, or a hash of the first user
// message truncated to 50 bytes.
func ConversationKey(model, sessionID, firstUserMessage string) string {
	if sessionID != "" {
		return model + "|" + sessionID
	}

	truncated := firstUserMessage
	if len(truncated) > 50 {
		truncated = truncated[:50]
	}

	sum := sha256.Sum256([]byte(truncated))

	return model + "|" + hex.EncodeToString(sum[:8])
}

// EstimateCacheableTokens implements spec.md §4.4's request-time estimate:
// character length of system content plus serialized tool declarations,
// divided by 4.
func EstimateCacheableTokens(systemContent string, toolsJSON []byte) int {
	return (len(systemContent) + len(toolsJSON)) / 4
}
