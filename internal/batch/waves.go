package batch

import (
	"context"
	"sync"

	"github.com/spigell/resume-batch/internal/document"
	"golang.org/x/sync/errgroup"
)

// WaveExecutor starts documents in waves of at most size goroutines. A new wave
// begins only after every item of the previous one finished.
type WaveExecutor struct {
	ctx  context.Context
	run  RunFunc
	size int

	mu     sync.Mutex
	wave   *errgroup.Group
	inWave int
	waves  int
	closed bool
}

func NewWaveExecutor(ctx context.Context, size int, run RunFunc) *WaveExecutor {
	if size <= 0 {
		size = 1
	}
	return &WaveExecutor{ctx: ctx, run: run, size: size}
}

func (w *WaveExecutor) Submit(ctx context.Context, ref document.Ref) (*Future, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrExecutorClosed
	}

	if w.wave == nil || w.inWave == w.size {
		if w.wave != nil {
			w.wave.Wait()
			w.wave = nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.wave = new(errgroup.Group)
		w.wave.SetLimit(w.size)
		w.inWave = 0
		w.waves++
	}

	w.inWave++
	f := newFuture()
	w.wave.Go(func() error {
		f.resolve(w.run(w.ctx, ref))
		return nil
	})

	return f, nil
}

func (w *WaveExecutor) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	if w.wave != nil {
		w.wave.Wait()
		w.wave = nil
	}
}

func (w *WaveExecutor) Limit() int {
	return w.size
}

// Waves reports how many waves were started.
func (w *WaveExecutor) Waves() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.waves
}
