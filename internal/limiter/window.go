// Package limiter counts invalid shares per worker over a trailing window of
// seconds. The counts only decide whether invalid shares are published; they
// never change a miner's response.
package limiter

import "sync"

// SlidingWindow is a ring of one-second buckets. A bucket is reused when its
// stamp no longer matches the second being written, so stale buckets are
// zeroed lazily.
type SlidingWindow struct {
	mu     sync.Mutex
	counts []int64
	stamps []int64
}

// NewSlidingWindow creates a window holding size seconds
func NewSlidingWindow(size int) *SlidingWindow {
	if size <= 0 {
		size = 1
	}
	w := &SlidingWindow{
		counts: make([]int64, size),
		stamps: make([]int64, size),
	}
	for i := range w.stamps {
		w.stamps[i] = -1
	}
	return w
}

// Size returns the number of buckets
func (w *SlidingWindow) Size() int {
	return len(w.counts)
}

func (w *SlidingWindow) index(ts int64) int {
	size := int64(len(w.counts))
	return int(((ts % size) + size) % size)
}

// Insert adds n to the bucket of second ts. Writes older than what the
// bucket currently holds are dropped.
func (w *SlidingWindow) Insert(ts int64, n int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.index(ts)
	switch {
	case w.stamps[i] == ts:
		w.counts[i] += n
	case w.stamps[i] < ts:
		w.stamps[i] = ts
		w.counts[i] = n
	}
}

// Sum returns the total of the span seconds ending at now, (now-span, now]
func (w *SlidingWindow) Sum(now int64, span int) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	span = min(span, len(w.counts))

	var total int64
	for ts := now - int64(span) + 1; ts <= now; ts++ {
		i := w.index(ts)
		if w.stamps[i] == ts {
			total += w.counts[i]
		}
	}
	return total
}
