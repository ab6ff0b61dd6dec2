package batch

import (
	"context"
	"sync"

	"github.com/spigell/resume-batch/internal/document"
	"go.uber.org/zap"
)

// Scheduler fans documents out to an executor and records every outcome.
type Scheduler struct {
	executor Executor
	tracker  *Tracker
	results  *Results
	logger   *zap.Logger

	// record serializes the append+advance pair so readers never see
	// completed ahead of the results collection.
	record sync.Mutex
}

func NewScheduler(executor Executor, tracker *Tracker, results *Results, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{executor: executor, tracker: tracker, results: results, logger: logger}
}

// Run submits every ref exactly once and waits for all submitted items. Item
// failures never stop the batch. When ctx is cancelled no further refs are
// submitted, in-flight items drain and the tracker is moved to Error. Run
// reports whether the batch was aborted.
func (s *Scheduler) Run(ctx context.Context, refs []document.Ref) bool {
	var wg sync.WaitGroup
	submitted := 0
	aborted := false

	for i, ref := range refs {
		if ctx.Err() != nil {
			aborted = true
			break
		}

		future, err := s.executor.Submit(ctx, ref)
		if err != nil {
			s.logger.Warn("stopping submissions", zap.Error(err), zap.Int("submitted", submitted))
			aborted = true
			break
		}
		submitted++

		wg.Add(1)
		go func(index int, name string, f *Future) {
			defer wg.Done()
			s.collect(index, name, f.Outcome())
		}(i, ref.Name, future)
	}

	wg.Wait()
	s.executor.Close()

	if aborted {
		s.tracker.Fail("batch aborted")
		s.logger.Warn("batch aborted",
			zap.Int("submitted", submitted),
			zap.Int("skipped", len(refs)-submitted),
		)
	}

	return aborted
}

func (s *Scheduler) collect(index int, name string, outcome ItemOutcome) {
	outcome.Index = index

	s.record.Lock()
	defer s.record.Unlock()

	s.results.Append(outcome)
	if err := s.tracker.Advance(name); err != nil {
		s.logger.Error("advancing progress", zap.String("document", name), zap.Error(err))
	}

	s.logger.Debug("item finished",
		zap.String("document", name),
		zap.String("status", string(outcome.Status)),
		zap.Duration("duration", outcome.Duration),
	)
}
