package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spigell/resume-batch/internal/document"
)

// gauge tracks how many items run at the same time.
type gauge struct {
	current atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
}

func (g *gauge) run(delay time.Duration) RunFunc {
	return func(_ context.Context, ref document.Ref) ItemOutcome {
		g.calls.Add(1)
		n := g.current.Add(1)
		for {
			peak := g.peak.Load()
			if n <= peak || g.peak.CompareAndSwap(peak, n) {
				break
			}
		}
		time.Sleep(delay)
		g.current.Add(-1)
		return ItemOutcome{Ref: ref, Status: ItemCompleted}
	}
}

func testRefs(n int) []document.Ref {
	refs := make([]document.Ref, n)
	for i := range refs {
		refs[i] = document.NewRef(fmt.Sprintf("resume-%02d.txt", i), []byte("text"))
	}
	return refs
}

func TestStrategyResolve(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		limit    int
		want     Strategy
		wantErr  bool
	}{
		{name: "auto small", strategy: StrategyAuto, limit: 3, want: StrategyPool},
		{name: "auto threshold", strategy: StrategyAuto, limit: 5, want: StrategyPool},
		{name: "auto large", strategy: StrategyAuto, limit: 6, want: StrategyWaves},
		{name: "empty is auto", strategy: "", limit: 25, want: StrategyWaves},
		{name: "explicit pool", strategy: StrategyPool, limit: 20, want: StrategyPool},
		{name: "explicit waves", strategy: StrategyWaves, limit: 1, want: StrategyWaves},
		{name: "zero", strategy: StrategyAuto, limit: 0, wantErr: true},
		{name: "too large", strategy: StrategyPool, limit: 26, wantErr: true},
		{name: "unknown", strategy: "fibers", limit: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.strategy.Resolve(tt.limit)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestResolveInvalidConcurrencyIsTyped(t *testing.T) {
	if _, err := StrategyAuto.Resolve(-1); !errors.Is(err, ErrInvalidConcurrency) {
		t.Fatalf("expected ErrInvalidConcurrency, got %v", err)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := map[string]Strategy{
		"":             StrategyAuto,
		"AUTO":         StrategyAuto,
		"pool":         StrategyPool,
		"threads":      StrategyPool,
		"waves":        StrategyWaves,
		" cooperative": StrategyWaves,
	}
	for in, want := range tests {
		got, err := ParseStrategy(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", in, want, got)
		}
	}

	if _, err := ParseStrategy("bogus"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestExecutorsRespectLimit(t *testing.T) {
	tests := []struct {
		strategy Strategy
		limit    int
		items    int
	}{
		{strategy: StrategyPool, limit: 1, items: 5},
		{strategy: StrategyPool, limit: 3, items: 12},
		{strategy: StrategyWaves, limit: 2, items: 7},
		{strategy: StrategyWaves, limit: 10, items: 25},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s-%d", tt.strategy, tt.limit), func(t *testing.T) {
			g := &gauge{}
			exec, err := NewExecutor(context.Background(), tt.strategy, tt.limit, g.run(15*time.Millisecond))
			if err != nil {
				t.Fatalf("new executor: %v", err)
			}
			if exec.Limit() != tt.limit {
				t.Fatalf("expected limit %d, got %d", tt.limit, exec.Limit())
			}

			futures := make([]*Future, 0, tt.items)
			for _, ref := range testRefs(tt.items) {
				f, err := exec.Submit(context.Background(), ref)
				if err != nil {
					t.Fatalf("submit: %v", err)
				}
				futures = append(futures, f)
			}
			exec.Close()

			for i, f := range futures {
				select {
				case <-f.Done():
				default:
					t.Fatalf("future %d not resolved after close", i)
				}
				if f.Outcome().Status != ItemCompleted {
					t.Fatalf("future %d: unexpected status %s", i, f.Outcome().Status)
				}
			}

			if got := int(g.calls.Load()); got != tt.items {
				t.Fatalf("expected %d calls, got %d", tt.items, got)
			}
			if peak := int(g.peak.Load()); peak > tt.limit {
				t.Fatalf("concurrency bound violated: peak %d > limit %d", peak, tt.limit)
			}
		})
	}
}

func TestWaveExecutorWaitsBetweenWaves(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		overlap bool
	)

	run := func(_ context.Context, ref document.Ref) ItemOutcome {
		mu.Lock()
		running++
		if running > 3 {
			overlap = true
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return ItemOutcome{Ref: ref, Status: ItemCompleted}
	}

	w := NewWaveExecutor(context.Background(), 3, run)
	for _, ref := range testRefs(8) {
		if _, err := w.Submit(context.Background(), ref); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	w.Close()

	if overlap {
		t.Fatalf("items of different waves overlapped")
	}
	if got := w.Waves(); got != 3 {
		t.Fatalf("expected 3 waves for 8 items of size 3, got %d", got)
	}
}

func TestExecutorSubmitAfterClose(t *testing.T) {
	for _, strategy := range []Strategy{StrategyPool, StrategyWaves} {
		exec, err := NewExecutor(context.Background(), strategy, 2, (&gauge{}).run(0))
		if err != nil {
			t.Fatalf("new executor: %v", err)
		}
		exec.Close()

		if _, err := exec.Submit(context.Background(), testRefs(1)[0]); !errors.Is(err, ErrExecutorClosed) {
			t.Fatalf("%s: expected ErrExecutorClosed, got %v", strategy, err)
		}
	}
}

func TestWorkerPoolSubmitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	run := func(_ context.Context, ref document.Ref) ItemOutcome {
		<-release
		return ItemOutcome{Ref: ref, Status: ItemCompleted}
	}

	pool := NewWorkerPool(context.Background(), 1, run)
	first, err := pool.Submit(context.Background(), testRefs(1)[0])
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := pool.Submit(ctx, testRefs(1)[0]); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while the only worker is busy, got %v", err)
	}

	close(release)
	pool.Close()

	if first.Outcome().Status != ItemCompleted {
		t.Fatalf("in-flight item must finish, got %s", first.Outcome().Status)
	}
}
