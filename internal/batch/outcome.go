package batch

import (
	"context"
	"time"

	"github.com/spigell/resume-batch/internal/ai"
	"github.com/spigell/resume-batch/internal/document"
	"github.com/spigell/resume-batch/internal/scoring"
)

// ItemStatus is the lifecycle state of one document in a batch.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
)

// Terminal reports whether no further transition can happen.
func (s ItemStatus) Terminal() bool {
	return s == ItemCompleted || s == ItemFailed
}

// ErrorKind tags why an item failed or was only partially processed.
type ErrorKind string

const (
	ErrorUnreadableDocument ErrorKind = "UnreadableDocument"
	ErrorParse              ErrorKind = "ParseError"
	ErrorScoring            ErrorKind = "ScoringError"
	ErrorInternal           ErrorKind = "InternalError"
)

// ItemOutcome is the terminal result for one document. Fields and Scores are set
// only for completed items, Error only for failed ones. A completed item may
// carry ErrorScoring together with a Note when scoring was unavailable.
type ItemOutcome struct {
	Index        int              `json:"index"`
	Ref          document.Ref     `json:"document"`
	Status       ItemStatus       `json:"status"`
	Fields       ai.ParsedResume  `json:"parsed_data,omitempty"`
	Candidate    ai.CandidateInfo `json:"candidate"`
	Scores       *scoring.Scores  `json:"scores,omitempty"`
	Explanations ai.Explanations  `json:"explanations,omitempty"`
	// Note explains a partial success, such as scoring being unavailable.
	Note           string        `json:"note,omitempty"`
	ErrorKind      ErrorKind     `json:"error_kind,omitempty"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"-"`
	ProcessingTime float64       `json:"processing_time"`
	CompletedAt    time.Time     `json:"completed_at"`
}

// Total is the weighted score, zero when the item has no scores.
func (o ItemOutcome) Total() float64 {
	if o.Scores == nil {
		return 0
	}
	return o.Scores.Total
}

// Processor turns one document into a terminal outcome. Implementations must
// never panic or leave an outcome non-terminal.
type Processor interface {
	Process(ctx context.Context, ref document.Ref, job string) ItemOutcome
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, ref document.Ref, job string) ItemOutcome

func (f ProcessorFunc) Process(ctx context.Context, ref document.Ref, job string) ItemOutcome {
	return f(ctx, ref, job)
}
