package stream

import (
	"context"
	"time"
)

// PingInterval is the keep-alive cadence from spec.md §4.2.
const PingInterval = 15 * time.Second

// RunPingLoop writes a ping event every PingInterval until ctx is canceled or
// state is closed. write is expected to flush and to itself be a no-op (or
// return an error) once the underlying connection is gone; the ping task
// additionally checks state.Closed() before every write per spec.md §4.2's
// "the ping task checks closed before writing".
func RunPingLoop(ctx context.Context, state *State, write func([]byte) error) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if state.Closed() {
				return
			}
			if err := write(FormatSSE(pingEvent())); err != nil {
				return
			}
		}
	}
}
