package batch

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()

	if got := tr.Snapshot().Status; got != StatusIdle {
		t.Fatalf("expected idle tracker, got %s", got)
	}

	if err := tr.Start(3); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := tr.Advance("a.pdf"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	state := tr.Snapshot()
	if state.Completed != 1 || state.Total != 3 {
		t.Fatalf("unexpected counters: %+v", state)
	}
	if state.Percentage != 33.3 {
		t.Fatalf("expected 33.3%%, got %v", state.Percentage)
	}
	if state.Current != "a.pdf" {
		t.Fatalf("expected current a.pdf, got %q", state.Current)
	}

	for _, name := range []string{"b.docx", "c.txt"} {
		if err := tr.Advance(name); err != nil {
			t.Fatalf("advance %s: %v", name, err)
		}
	}

	state = tr.Snapshot()
	if state.Status != StatusCompleted || state.Percentage != 100 {
		t.Fatalf("expected completed at 100%%, got %+v", state)
	}
	if state.FinishedAt.IsZero() {
		t.Fatalf("expected finish time to be recorded")
	}

	if err := tr.Advance("extra"); !errors.Is(err, ErrTrackerNotRunning) {
		t.Fatalf("expected ErrTrackerNotRunning, got %v", err)
	}
	if got := tr.Snapshot().Completed; got != 3 {
		t.Fatalf("completed must not exceed total, got %d", got)
	}
}

func TestTrackerRejectsSecondStart(t *testing.T) {
	tr := NewTracker()
	if err := tr.Start(2); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := tr.Start(5); !errors.Is(err, ErrBatchAlreadyRunning) {
		t.Fatalf("expected ErrBatchAlreadyRunning, got %v", err)
	}
	if got := tr.Snapshot().Total; got != 2 {
		t.Fatalf("second start must not reset state, total=%d", got)
	}
}

func TestTrackerZeroItems(t *testing.T) {
	tr := NewTracker()
	if err := tr.Start(0); err != nil {
		t.Fatalf("start: %v", err)
	}

	state := tr.Snapshot()
	if state.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}
	if state.Percentage != 100 {
		t.Fatalf("expected 100%%, got %v", state.Percentage)
	}

	// A finished tracker can be reused.
	if err := tr.Start(1); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestTrackerAdvanceBeforeStart(t *testing.T) {
	tr := NewTracker()
	if err := tr.Advance("x"); !errors.Is(err, ErrTrackerNotRunning) {
		t.Fatalf("expected ErrTrackerNotRunning, got %v", err)
	}
}

func TestTrackerFail(t *testing.T) {
	tr := NewTracker()
	tr.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	tr.Fail("ignored")
	if got := tr.Snapshot().Status; got != StatusIdle {
		t.Fatalf("fail on idle tracker must be a no-op, got %s", got)
	}

	if err := tr.Start(4); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = tr.Advance("a")
	tr.Fail("batch aborted")

	state := tr.Snapshot()
	if state.Status != StatusError || state.Error != "batch aborted" {
		t.Fatalf("unexpected state after fail: %+v", state)
	}
	if state.Completed != 1 {
		t.Fatalf("fail must keep counters, got %d", state.Completed)
	}
	if err := tr.Advance("b"); !errors.Is(err, ErrTrackerNotRunning) {
		t.Fatalf("expected ErrTrackerNotRunning after fail, got %v", err)
	}
}

func TestTrackerConcurrentAdvance(t *testing.T) {
	const total = 200

	tr := NewTracker()
	if err := tr.Start(total); err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.Advance("doc")
			s := tr.Snapshot()
			if s.Completed > s.Total || s.Percentage > 100 {
				t.Errorf("inconsistent snapshot: %+v", s)
			}
		}()
	}
	wg.Wait()

	state := tr.Snapshot()
	if state.Completed != total || state.Status != StatusCompleted {
		t.Fatalf("unexpected final state: %+v", state)
	}
}
