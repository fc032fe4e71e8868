package market

import (
	"sync"
	"time"
)

// Sample is one observed price.
type Sample struct {
	Time  time.Time
	Price float64
}

// History keeps the most recent prices per pair in a bounded buffer.
type History struct {
	mu     sync.RWMutex
	size   int
	series map[string][]Sample
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 100
	}
	return &History{size: size, series: make(map[string][]Sample)}
}

// Record appends a price, evicting the oldest sample once the buffer is full.
func (h *History) Record(pair string, price float64, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := append(h.series[pair], Sample{Time: at, Price: price})
	if len(s) > h.size {
		s = s[len(s)-h.size:]
	}
	h.series[pair] = s
}

// Snapshot returns a copy of the samples of a pair, oldest first.
func (h *History) Snapshot(pair string) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := h.series[pair]
	out := make([]Sample, len(s))
	copy(out, s)
	return out
}

func (h *History) Len(pair string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.series[pair])
}
