package batch

import (
	"errors"
	"math"
	"sync"
	"time"
)

var (
	// ErrBatchAlreadyRunning rejects a second start while a batch is in flight.
	ErrBatchAlreadyRunning = errors.New("batch already running")
	// ErrTrackerNotRunning rejects progress updates outside a running batch.
	ErrTrackerNotRunning = errors.New("tracker is not running")
)

// Status is the overall batch state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether the batch has stopped.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// State is a point-in-time copy of the tracker.
type State struct {
	Total      int       `json:"total"`
	Completed  int       `json:"completed"`
	Percentage float64   `json:"percentage"`
	Current    string    `json:"current_file"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Tracker records batch progress. All methods are safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{state: State{Status: StatusIdle}, now: time.Now}
}

// Start resets the tracker for a batch of total items. An empty batch is
// completed immediately.
func (t *Tracker) Start(total int) error {
	if total < 0 {
		return errors.New("total must not be negative")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status == StatusRunning {
		return ErrBatchAlreadyRunning
	}

	now := t.now()
	t.state = State{Total: total, Status: StatusRunning, StartedAt: now}
	if total == 0 {
		t.state.Status = StatusCompleted
		t.state.FinishedAt = now
	}
	return nil
}

// Advance counts one more terminal item and records its label.
func (t *Tracker) Advance(label string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status != StatusRunning || t.state.Completed >= t.state.Total {
		return ErrTrackerNotRunning
	}

	t.state.Completed++
	t.state.Current = label
	if t.state.Completed == t.state.Total {
		t.state.Status = StatusCompleted
		t.state.FinishedAt = t.now()
	}
	return nil
}

// Fail moves a running batch to Error.
func (t *Tracker) Fail(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status != StatusRunning {
		return
	}
	t.state.Status = StatusError
	t.state.Error = reason
	t.state.FinishedAt = t.now()
}

// Snapshot returns a consistent copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	s := t.state
	t.mu.RUnlock()

	switch {
	case s.Total > 0:
		s.Percentage = math.Round(float64(s.Completed)/float64(s.Total)*1000) / 10
	case s.Status == StatusCompleted:
		s.Percentage = 100
	}
	return s
}
