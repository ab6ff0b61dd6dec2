package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spigell/resume-batch/internal/ai"
	"github.com/spigell/resume-batch/internal/batch"
	"github.com/spigell/resume-batch/internal/document"
	"github.com/spigell/resume-batch/internal/extract"
	"github.com/spigell/resume-batch/internal/scoring"
	"go.uber.org/zap"
)

func TestBatchReportsEmptyDocumentAsFailed(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("Resume of "+name), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.pdf"), nil, 0o600); err != nil {
		t.Fatalf("write broken.pdf: %v", err)
	}

	refs, err := document.NewResolver(nil).Dir(context.Background(), dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	p := New(
		extract.New(extract.Config{}, nil, nil),
		stubFields{parsed: parsedFixture()},
		stubScorer{assessment: &ai.Assessment{Scores: scoring.Raw{Education: 50, WorkExperience: 50, TechnicalSkills: 50, Certifications: 50, Projects: 50, LanguagesAndSkills: 50}}},
		zap.NewNop(),
		Options{},
	)
	manager := batch.NewManager(p, zap.NewNop())

	id, err := manager.Start(context.Background(), refs, batch.Options{Concurrency: 2})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := manager.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}

	if report.Status != batch.StatusCompleted || report.Total != 6 || report.Completed != 6 {
		t.Fatalf("unexpected report: status=%s total=%d completed=%d", report.Status, report.Total, report.Completed)
	}

	var completed, failed int
	for _, o := range report.Results {
		switch o.Status {
		case batch.ItemCompleted:
			completed++
		case batch.ItemFailed:
			failed++
			if o.Ref.Name != "broken.pdf" || o.ErrorKind != batch.ErrorUnreadableDocument || o.Error == "" {
				t.Fatalf("unexpected failure: %+v", o)
			}
		}
	}
	if completed != 5 || failed != 1 {
		t.Fatalf("expected 5 completed and 1 failed, got %d and %d", completed, failed)
	}
}
