// Package publisher mirrors batch progress to observers as a stream of snapshots.
package publisher

import (
	"context"
	"time"

	"github.com/spigell/resume-batch/internal/batch"
	"go.uber.org/zap"
)

const DefaultInterval = 500 * time.Millisecond

// Source provides progress snapshots by batch identifier.
type Source interface {
	Progress(id string) (batch.State, error)
}

// Publisher never mutates the batch it observes.
type Publisher struct {
	source   Source
	interval time.Duration
	logger   *zap.Logger
}

func New(source Source, interval time.Duration, logger *zap.Logger) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{source: source, interval: interval, logger: logger}
}

// Interval is the push period.
func (p *Publisher) Interval() time.Duration {
	return p.interval
}

// Snapshot returns the current state of a batch.
func (p *Publisher) Snapshot(id string) (batch.State, error) {
	return p.source.Progress(id)
}

// Subscribe emits the current snapshot immediately and then every interval until
// the batch is terminal. The terminal snapshot is always delivered before the
// channel closes. Cancelling ctx unsubscribes.
func (p *Publisher) Subscribe(ctx context.Context, id string) (<-chan batch.State, error) {
	first, err := p.source.Progress(id)
	if err != nil {
		return nil, err
	}

	out := make(chan batch.State, 1)
	go p.stream(ctx, id, first, out)
	return out, nil
}

func (p *Publisher) stream(ctx context.Context, id string, state batch.State, out chan<- batch.State) {
	defer close(out)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case out <- state:
		case <-ctx.Done():
			return
		}

		if state.Status.Terminal() {
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}

		next, err := p.source.Progress(id)
		if err != nil {
			// the batch was pruned; the last snapshot already went out
			p.logger.Debug("stopping progress stream", zap.String("batch_id", id), zap.Error(err))
			return
		}
		state = next
	}
}
