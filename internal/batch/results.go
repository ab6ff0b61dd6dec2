package batch

import "sync"

// Results accumulates outcomes in completion order.
type Results struct {
	mu    sync.RWMutex
	items []ItemOutcome
}

func NewResults(capacity int) *Results {
	return &Results{items: make([]ItemOutcome, 0, capacity)}
}

func (r *Results) Append(o ItemOutcome) {
	r.mu.Lock()
	r.items = append(r.items, o)
	r.mu.Unlock()
}

func (r *Results) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Snapshot returns a copy safe to read while the batch keeps running.
func (r *Results) Snapshot() []ItemOutcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ItemOutcome, len(r.items))
	copy(out, r.items)
	return out
}
