package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/resume-batch/internal/ai"
	"github.com/spigell/resume-batch/internal/document"
	"github.com/spigell/resume-batch/internal/logger"
	"go.uber.org/zap"
)

// ErrBatchNotFound is returned for unknown or pruned batch identifiers.
var ErrBatchNotFound = errors.New("batch not found")

const (
	defaultMaxActive = 1
	defaultRetain    = 20
)

// Options configures a single batch.
type Options struct {
	Concurrency int
	Strategy    Strategy
	Job         string
}

// Report is the caller-facing view of a batch, partial while it runs.
type Report struct {
	BatchID         string        `json:"batch_id"`
	Status          Status        `json:"status"`
	Total           int           `json:"total"`
	Completed       int           `json:"completed"`
	Error           string        `json:"error,omitempty"`
	Results         []ItemOutcome `json:"results"`
	JobRequirements string        `json:"job_requirements"`
	Strategy        Strategy      `json:"strategy"`
	Concurrency     int           `json:"concurrency"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
}

// Observer receives lifecycle notifications, typically for metrics.
type Observer interface {
	BatchStarted(strategy Strategy, total int)
	ItemStarted()
	ItemFinished(outcome ItemOutcome)
	BatchFinished(report Report)
}

type nopObserver struct{}

func (nopObserver) BatchStarted(Strategy, int) {}
func (nopObserver) ItemStarted()               {}
func (nopObserver) ItemFinished(ItemOutcome)   {}
func (nopObserver) BatchFinished(Report)       {}

// FinishHook runs after a batch reaches a terminal state.
type FinishHook func(ctx context.Context, report Report)

// Batch is one submitted set of documents and its progress handle.
type Batch struct {
	ID          string
	Job         string
	Strategy    Strategy
	Concurrency int

	tracker *Tracker
	results *Results
	cancel  context.CancelFunc
	done    chan struct{}
}

// State returns the current progress snapshot.
func (b *Batch) State() State {
	return b.tracker.Snapshot()
}

// Done is closed when the batch finished and all hooks ran.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Cancel stops new submissions; in-flight items still finish.
func (b *Batch) Cancel() {
	b.cancel()
}

// Report assembles the current results together with progress counters.
func (b *Batch) Report() Report {
	state := b.tracker.Snapshot()
	return Report{
		BatchID:         b.ID,
		Status:          state.Status,
		Total:           state.Total,
		Completed:       state.Completed,
		Error:           state.Error,
		Results:         b.results.Snapshot(),
		JobRequirements: b.Job,
		Strategy:        b.Strategy,
		Concurrency:     b.Concurrency,
		StartedAt:       state.StartedAt,
		FinishedAt:      state.FinishedAt,
	}
}

// Manager is the registry of batches keyed by identifier.
type Manager struct {
	processor Processor
	logger    *zap.Logger
	observer  Observer
	hooks     []FinishHook
	maxActive int
	retain    int
	newID     func() string

	mu      sync.RWMutex
	batches map[string]*Batch
	order   []string
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithMaxActive limits how many batches may run at once.
func WithMaxActive(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxActive = n
		}
	}
}

// WithRetain limits how many batches are kept in memory, finished ones are pruned first.
func WithRetain(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.retain = n
		}
	}
}

func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

func WithFinishHook(h FinishHook) ManagerOption {
	return func(m *Manager) {
		if h != nil {
			m.hooks = append(m.hooks, h)
		}
	}
}

func NewManager(processor Processor, log *zap.Logger, opts ...ManagerOption) *Manager {
	if log == nil {
		log = zap.NewNop()
	}

	m := &Manager{
		processor: processor,
		logger:    log,
		observer:  nopObserver{},
		maxActive: defaultMaxActive,
		retain:    defaultRetain,
		newID:     uuid.NewString,
		batches:   make(map[string]*Batch),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start registers a batch and begins processing in the background. ctx bounds the
// whole batch: cancelling it aborts the batch the same way Cancel does.
func (m *Manager) Start(ctx context.Context, refs []document.Ref, opts Options) (string, error) {
	strategy, err := opts.Strategy.Resolve(opts.Concurrency)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(ctx)
	b := &Batch{
		ID:          m.newID(),
		Job:         ai.JobOrDefault(opts.Job),
		Strategy:    strategy,
		Concurrency: opts.Concurrency,
		tracker:     NewTracker(),
		results:     NewResults(len(refs)),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	m.mu.Lock()
	if m.activeLocked() >= m.maxActive {
		m.mu.Unlock()
		cancel()
		return "", ErrBatchAlreadyRunning
	}
	if err := b.tracker.Start(len(refs)); err != nil {
		m.mu.Unlock()
		cancel()
		return "", err
	}
	m.batches[b.ID] = b
	m.order = append(m.order, b.ID)
	m.pruneLocked()
	m.mu.Unlock()

	m.logger.Info("batch started",
		zap.String(logger.FieldBatchID, b.ID),
		zap.Int("documents", len(refs)),
		zap.String("strategy", string(strategy)),
		zap.Int("concurrency", b.Concurrency),
	)

	items := make([]document.Ref, len(refs))
	copy(items, refs)

	go m.run(runCtx, b, items)

	return b.ID, nil
}

func (m *Manager) run(ctx context.Context, b *Batch, refs []document.Ref) {
	defer close(b.done)
	defer b.cancel()

	log := logger.WithBatch(m.logger, b.ID)
	m.observer.BatchStarted(b.Strategy, len(refs))

	run := func(itemCtx context.Context, ref document.Ref) ItemOutcome {
		m.observer.ItemStarted()
		outcome := m.processor.Process(itemCtx, ref, b.Job)
		m.observer.ItemFinished(outcome)
		return outcome
	}

	// items keep running after cancellation, each remote call carries its own timeout
	executor, err := NewExecutor(context.WithoutCancel(ctx), b.Strategy, b.Concurrency, run)
	if err != nil {
		b.tracker.Fail(err.Error())
		log.Error("creating executor", zap.Error(err))
	} else {
		NewScheduler(executor, b.tracker, b.results, log).Run(ctx, refs)
	}

	report := b.Report()
	log.Info("batch finished",
		zap.String("status", string(report.Status)),
		zap.Int("total", report.Total),
		zap.Int("completed", report.Completed),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	m.observer.BatchFinished(report)
	for _, hook := range m.hooks {
		hook(context.WithoutCancel(ctx), report)
	}
}

func (m *Manager) activeLocked() int {
	active := 0
	for _, b := range m.batches {
		if b.tracker.Snapshot().Status == StatusRunning {
			active++
		}
	}
	return active
}

// pruneLocked drops the oldest finished batches beyond the retention limit.
func (m *Manager) pruneLocked() {
	for len(m.order) > m.retain {
		pruned := false
		for i, id := range m.order {
			b := m.batches[id]
			if b != nil && !b.tracker.Snapshot().Status.Terminal() {
				continue
			}
			delete(m.batches, id)
			m.order = append(m.order[:i], m.order[i+1:]...)
			pruned = true
			break
		}
		if !pruned {
			return
		}
	}
}

// Get returns the batch with the given identifier.
func (m *Manager) Get(id string) (*Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return b, nil
}

// Latest returns the most recently started batch.
func (m *Manager) Latest() (*Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.order) == 0 {
		return nil, ErrBatchNotFound
	}
	return m.batches[m.order[len(m.order)-1]], nil
}

// Progress returns the progress snapshot of a batch.
func (m *Manager) Progress(id string) (State, error) {
	b, err := m.Get(id)
	if err != nil {
		return State{}, err
	}
	return b.State(), nil
}

// Results returns the current report of a batch; it may be partial.
func (m *Manager) Results(id string) (Report, error) {
	b, err := m.Get(id)
	if err != nil {
		return Report{}, err
	}
	return b.Report(), nil
}

// Cancel aborts a running batch.
func (m *Manager) Cancel(id string) error {
	b, err := m.Get(id)
	if err != nil {
		return err
	}
	b.Cancel()
	return nil
}

// Wait blocks until the batch finished or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (Report, error) {
	b, err := m.Get(id)
	if err != nil {
		return Report{}, err
	}

	select {
	case <-b.Done():
		return b.Report(), nil
	case <-ctx.Done():
		return b.Report(), ctx.Err()
	}
}

// Shutdown cancels every running batch and waits for them to drain.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	batches := make([]*Batch, 0, len(m.batches))
	for _, b := range m.batches {
		batches = append(batches, b)
	}
	m.mu.RUnlock()

	for _, b := range batches {
		b.Cancel()
	}
	for _, b := range batches {
		select {
		case <-b.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
