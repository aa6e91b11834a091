package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bardlex/beampool/pkg/log"
)

const shardCount = 64

type entry struct {
	window   *SlidingWindow
	lastSeen atomic.Int64
}

type shard struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// Registry hands out one SlidingWindow per worker. Connections of the same
// worker share the entry; idle entries are removed by Sweep.
type Registry struct {
	windowSize int
	shards     [shardCount]shard
}

// NewRegistry creates a registry whose windows hold windowSize seconds
func NewRegistry(windowSize int) *Registry {
	r := &Registry{windowSize: windowSize}
	for i := range r.shards {
		r.shards[i].entries = make(map[int64]*entry)
	}
	return r
}

// Worker ids are already hashes of the worker name
func (r *Registry) shardFor(workerID int64) *shard {
	return &r.shards[uint64(workerID)%shardCount]
}

// Window returns the worker's window, creating it on first use. The entry
// is touched under the shard lock so a concurrent Sweep never removes it.
func (r *Registry) Window(workerID int64, now time.Time) *SlidingWindow {
	s := r.shardFor(workerID)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[workerID]
	if !ok {
		e = &entry{window: NewSlidingWindow(r.windowSize)}
		s.entries[workerID] = e
	}
	e.lastSeen.Store(now.Unix())
	return e.window
}

// Len returns the number of tracked workers
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Sweep removes workers not seen for longer than idle and returns how many
// were removed
func (r *Registry) Sweep(now time.Time, idle time.Duration) int {
	cutoff := now.Add(-idle).Unix()
	removed := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for id, e := range s.entries {
			if e.lastSeen.Load() < cutoff {
				delete(s.entries, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Run sweeps every interval until ctx is done
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := r.Sweep(now, idle); removed > 0 {
				logger.Debug("swept idle worker limiters", "removed", removed, "remaining", r.Len())
			}
		}
	}
}
