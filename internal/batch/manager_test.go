package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spigell/resume-batch/internal/ai"
	"github.com/spigell/resume-batch/internal/document"
	"github.com/spigell/resume-batch/internal/scoring"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func waitReport(t *testing.T, m *Manager, id string) Report {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := m.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait for batch %s: %v", id, err)
	}
	return report
}

// stubProcessor fails names that contain "broken" and scores the rest by name.
func stubProcessor(delay time.Duration) Processor {
	return ProcessorFunc(func(_ context.Context, ref document.Ref, _ string) ItemOutcome {
		time.Sleep(delay)
		if strings.Contains(ref.Name, "broken") {
			return ItemOutcome{
				Ref:         ref,
				Status:      ItemFailed,
				ErrorKind:   ErrorUnreadableDocument,
				Error:       "no text extracted",
				CompletedAt: time.Now(),
			}
		}
		scores := scoring.Compute(scoring.Raw{Education: 80, WorkExperience: 70, TechnicalSkills: 90, Certifications: 60, Projects: 75, LanguagesAndSkills: 85})
		return ItemOutcome{
			Ref:         ref,
			Status:      ItemCompleted,
			Fields:      ai.ParsedResume{ai.FieldInfo: map[string]any{"full_name": ref.Name}},
			Scores:      &scores,
			CompletedAt: time.Now(),
		}
	})
}

type countingObserver struct {
	started  atomic.Int32
	finished atomic.Int32
	batches  atomic.Int32
	done     atomic.Int32
}

func (o *countingObserver) BatchStarted(Strategy, int) { o.batches.Add(1) }
func (o *countingObserver) ItemStarted()               { o.started.Add(1) }
func (o *countingObserver) ItemFinished(ItemOutcome)   { o.finished.Add(1) }
func (o *countingObserver) BatchFinished(Report)       { o.done.Add(1) }

func TestManagerMixedBatch(t *testing.T) {
	refs := []document.Ref{
		document.NewRef("a.pdf", []byte("a")),
		document.NewRef("b-broken.pdf", []byte("b")),
		document.NewRef("c.docx", []byte("c")),
	}

	obs := &countingObserver{}
	m := NewManager(stubProcessor(5*time.Millisecond), zap.NewNop(), WithObserver(obs))

	id, err := m.Start(context.Background(), refs, Options{Concurrency: 2})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	report := waitReport(t, m, id)

	if report.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", report.Status, report.Error)
	}
	if report.Total != 3 || report.Completed != 3 || len(report.Results) != 3 {
		t.Fatalf("unexpected counters: total=%d completed=%d results=%d", report.Total, report.Completed, len(report.Results))
	}
	if report.Strategy != StrategyPool {
		t.Fatalf("expected auto to resolve to pool, got %s", report.Strategy)
	}
	if report.JobRequirements != ai.DefaultJobRequirement {
		t.Fatalf("expected default job requirements")
	}

	byName := map[string]ItemOutcome{}
	for _, o := range report.Results {
		byName[o.Ref.Name] = o
	}
	if got := byName["b-broken.pdf"]; got.Status != ItemFailed || got.ErrorKind != ErrorUnreadableDocument {
		t.Fatalf("unexpected outcome for broken document: %+v", got)
	}
	if got := byName["b-broken.pdf"].Index; got != 1 {
		t.Fatalf("expected submission index 1, got %d", got)
	}
	for _, name := range []string{"a.pdf", "c.docx"} {
		o := byName[name]
		if o.Status != ItemCompleted || o.Scores == nil {
			t.Fatalf("expected %s to be completed with scores, got %+v", name, o)
		}
	}

	progress, err := m.Progress(id)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.Percentage != 100 {
		t.Fatalf("expected 100%%, got %v", progress.Percentage)
	}

	if obs.started.Load() != 3 || obs.finished.Load() != 3 || obs.batches.Load() != 1 || obs.done.Load() != 1 {
		t.Fatalf("unexpected observer counts: %d/%d/%d/%d", obs.started.Load(), obs.finished.Load(), obs.batches.Load(), obs.done.Load())
	}
}

func TestManagerPartialFailureKeepsGoing(t *testing.T) {
	refs := testRefs(4)
	refs = append(refs, document.NewRef("broken.rtf", []byte("x")))

	m := NewManager(stubProcessor(0), zap.NewNop())
	id, err := m.Start(context.Background(), refs, Options{Concurrency: 3, Strategy: StrategyWaves})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	report := waitReport(t, m, id)
	if report.Status != StatusCompleted {
		t.Fatalf("a failing item must not fail the batch, got %s", report.Status)
	}

	failed := 0
	for _, o := range report.Results {
		if !o.Status.Terminal() {
			t.Fatalf("non terminal outcome: %+v", o)
		}
		if o.Status == ItemFailed {
			failed++
		}
	}
	if failed != 1 || len(report.Results) != 5 {
		t.Fatalf("expected 4 completed and 1 failed, got %d failed of %d", failed, len(report.Results))
	}
}

func TestManagerZeroItems(t *testing.T) {
	m := NewManager(stubProcessor(0), zap.NewNop())

	id, err := m.Start(context.Background(), nil, Options{Concurrency: 1})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	report := waitReport(t, m, id)
	if report.Status != StatusCompleted || len(report.Results) != 0 {
		t.Fatalf("unexpected report for empty batch: %+v", report)
	}

	state, _ := m.Progress(id)
	if state.Percentage != 100 {
		t.Fatalf("expected 100%% for empty batch, got %v", state.Percentage)
	}
}

func TestManagerRejectsWhileRunning(t *testing.T) {
	release := make(chan struct{})
	proc := ProcessorFunc(func(_ context.Context, ref document.Ref, _ string) ItemOutcome {
		<-release
		return ItemOutcome{Ref: ref, Status: ItemCompleted, Scores: &scoring.Scores{}}
	})

	m := NewManager(proc, zap.NewNop())
	first, err := m.Start(context.Background(), testRefs(2), Options{Concurrency: 1})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := m.Start(context.Background(), testRefs(1), Options{Concurrency: 1}); !errors.Is(err, ErrBatchAlreadyRunning) {
		t.Fatalf("expected ErrBatchAlreadyRunning, got %v", err)
	}

	close(release)
	waitReport(t, m, first)

	second, err := m.Start(context.Background(), testRefs(1), Options{Concurrency: 1})
	if err != nil {
		t.Fatalf("start after completion: %v", err)
	}
	waitReport(t, m, second)

	latest, err := m.Latest()
	if err != nil || latest.ID != second {
		t.Fatalf("expected latest batch %s, got %v (%v)", second, latest, err)
	}
}

func TestManagerRejectsInvalidConcurrency(t *testing.T) {
	m := NewManager(stubProcessor(0), zap.NewNop())

	for _, c := range []int{0, 26} {
		if _, err := m.Start(context.Background(), testRefs(1), Options{Concurrency: c}); !errors.Is(err, ErrInvalidConcurrency) {
			t.Fatalf("concurrency %d: expected ErrInvalidConcurrency, got %v", c, err)
		}
	}
	if _, err := m.Latest(); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("rejected batches must not be registered, got %v", err)
	}
}

func TestManagerCancelDrainsInFlight(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	proc := ProcessorFunc(func(ctx context.Context, ref document.Ref, _ string) ItemOutcome {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		if ctx.Err() != nil {
			return ItemOutcome{Ref: ref, Status: ItemFailed, ErrorKind: ErrorInternal, Error: "item context cancelled"}
		}
		return ItemOutcome{Ref: ref, Status: ItemCompleted, Scores: &scoring.Scores{}}
	})

	core, logs := observer.New(zap.WarnLevel)
	m := NewManager(proc, zap.New(core))

	id, err := m.Start(context.Background(), testRefs(5), Options{Concurrency: 1})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	<-started
	if err := m.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	close(release)

	report := waitReport(t, m, id)
	if report.Status != StatusError {
		t.Fatalf("expected error status after cancel, got %s", report.Status)
	}
	if report.Error != "batch aborted" {
		t.Fatalf("unexpected error message %q", report.Error)
	}
	if report.Completed >= report.Total || report.Completed == 0 {
		t.Fatalf("expected a partial batch, got %d of %d", report.Completed, report.Total)
	}
	for _, o := range report.Results {
		if o.Status != ItemCompleted {
			t.Fatalf("in-flight items must finish normally, got %+v", o)
		}
	}
	if logs.FilterMessage("batch aborted").Len() != 1 {
		t.Fatalf("expected an abort log entry")
	}
}

func TestManagerFinishHookAndRetention(t *testing.T) {
	var (
		mu      sync.Mutex
		reports []Report
	)
	hook := func(_ context.Context, r Report) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
	}

	m := NewManager(stubProcessor(0), zap.NewNop(), WithRetain(2), WithFinishHook(hook))

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := m.Start(context.Background(), testRefs(1), Options{Concurrency: 1})
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		waitReport(t, m, id)
		ids = append(ids, id)
	}

	if _, err := m.Get(ids[0]); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("oldest batch should be pruned, got %v", err)
	}
	for _, id := range ids[1:] {
		if _, err := m.Get(id); err != nil {
			t.Fatalf("batch %s should be retained: %v", id, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 3 {
		t.Fatalf("expected hook per batch, got %d", len(reports))
	}
	if reports[0].BatchID != ids[0] || reports[0].Status != StatusCompleted {
		t.Fatalf("unexpected hook report %+v", reports[0])
	}
}

func TestManagerUnknownBatch(t *testing.T) {
	m := NewManager(stubProcessor(0), zap.NewNop())

	if _, err := m.Progress("missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
	if _, err := m.Results("missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
	if err := m.Cancel("missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}

func TestSchedulerRecordsBeforeAdvancing(t *testing.T) {
	tr := NewTracker()
	res := NewResults(10)
	if err := tr.Start(10); err != nil {
		t.Fatalf("start: %v", err)
	}

	exec := NewWorkerPool(context.Background(), 4, (&gauge{}).run(time.Millisecond))
	s := NewScheduler(exec, tr, res, zap.NewNop())

	stop := make(chan struct{})
	violations := atomic.Int32{}
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			res.mu.RLock()
			n := len(res.items)
			completed := tr.Snapshot().Completed
			res.mu.RUnlock()
			if completed > n {
				violations.Add(1)
			}
		}
	}()

	if aborted := s.Run(context.Background(), testRefs(10)); aborted {
		t.Fatalf("unexpected abort")
	}
	close(stop)

	if res.Len() != 10 || tr.Snapshot().Status != StatusCompleted {
		t.Fatalf("unexpected final state: results=%d state=%+v", res.Len(), tr.Snapshot())
	}
	if violations.Load() != 0 {
		t.Fatalf("progress ran ahead of results %d times", violations.Load())
	}
}
