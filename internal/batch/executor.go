package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/resume-batch/internal/document"
)

const (
	// MaxConcurrency is the largest accepted concurrency bound.
	MaxConcurrency = 25
	// poolThreshold is the largest bound the auto strategy serves with a worker pool.
	poolThreshold = 5
)

var (
	ErrExecutorClosed     = errors.New("executor is closed")
	ErrInvalidConcurrency = fmt.Errorf("concurrency must be between 1 and %d", MaxConcurrency)
)

// Strategy selects how the concurrency bound is enforced.
type Strategy string

const (
	StrategyAuto  Strategy = "auto"
	StrategyPool  Strategy = "pool"
	StrategyWaves Strategy = "waves"
)

// ParseStrategy accepts the names used in config files and requests.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyPool, "worker-pool", "threads":
		return StrategyPool, nil
	case StrategyWaves, "cooperative", "async":
		return StrategyWaves, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// Resolve validates limit and replaces auto with a concrete strategy.
func (s Strategy) Resolve(limit int) (Strategy, error) {
	if limit < 1 || limit > MaxConcurrency {
		return "", fmt.Errorf("%w: got %d", ErrInvalidConcurrency, limit)
	}
	switch s {
	case "", StrategyAuto:
		if limit <= poolThreshold {
			return StrategyPool, nil
		}
		return StrategyWaves, nil
	case StrategyPool, StrategyWaves:
		return s, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// RunFunc processes a single document.
type RunFunc func(ctx context.Context, ref document.Ref) ItemOutcome

// Future resolves to the outcome of one submitted document.
type Future struct {
	done    chan struct{}
	outcome ItemOutcome
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(o ItemOutcome) {
	f.outcome = o
	close(f.done)
}

// Done is closed once the outcome is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Outcome blocks until the document is processed.
func (f *Future) Outcome() ItemOutcome {
	<-f.done
	return f.outcome
}

// Executor runs documents with at most Limit of them in flight. Submit blocks
// while the bound is reached and fails once ctx is done or the executor is closed.
// Close waits for everything already submitted.
type Executor interface {
	Submit(ctx context.Context, ref document.Ref) (*Future, error)
	Close()
	Limit() int
}

// NewExecutor builds the executor for strategy. Items run on ctx, which should
// outlive batch cancellation so in-flight items can drain.
func NewExecutor(ctx context.Context, strategy Strategy, limit int, run RunFunc) (Executor, error) {
	resolved, err := strategy.Resolve(limit)
	if err != nil {
		return nil, err
	}
	if resolved == StrategyWaves {
		return NewWaveExecutor(ctx, limit, run), nil
	}
	return NewWorkerPool(ctx, limit, run), nil
}
