// Package processor runs the per-document pipeline: text extraction, field
// extraction and scoring.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/spigell/resume-batch/internal/ai"
	"github.com/spigell/resume-batch/internal/batch"
	"github.com/spigell/resume-batch/internal/document"
	"github.com/spigell/resume-batch/internal/extract"
	"github.com/spigell/resume-batch/internal/logger"
	"github.com/spigell/resume-batch/internal/scoring"
	"github.com/spigell/resume-batch/internal/utils"
	"go.uber.org/zap"
)

const (
	defaultCallTimeout = 3 * time.Minute
	maxErrorLength     = 300
)

// Options tunes the processor.
type Options struct {
	// CallTimeout bounds each extraction and remote call.
	CallTimeout time.Duration
}

// Processor implements batch.Processor.
type Processor struct {
	extractor extract.Extractor
	fields    ai.FieldExtractor
	scorer    ai.Scorer
	logger    *zap.Logger
	timeout   time.Duration
	now       func() time.Time
}

var _ batch.Processor = (*Processor)(nil)

func New(extractor extract.Extractor, fields ai.FieldExtractor, scorer ai.Scorer, log *zap.Logger, opts Options) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}

	return &Processor{
		extractor: extractor,
		fields:    fields,
		scorer:    scorer,
		logger:    log,
		timeout:   opts.CallTimeout,
		now:       time.Now,
	}
}

// Process always returns a terminal outcome. A scoring failure still yields a
// completed item with zero scores and an explanatory note.
func (p *Processor) Process(ctx context.Context, ref document.Ref, job string) (outcome batch.ItemOutcome) {
	started := p.now()
	log := p.logger.With(logger.DocumentFields(ref.Name, string(ref.Format))...)

	outcome = batch.ItemOutcome{Ref: ref, Status: batch.ItemProcessing}

	defer func() {
		if r := recover(); r != nil {
			log.Error("processor panic", zap.Any("panic", r))
			outcome = batch.ItemOutcome{
				Ref:       ref,
				Status:    batch.ItemFailed,
				ErrorKind: batch.ErrorInternal,
				Error:     utils.TruncateForLog(utils.SingleLine(fmt.Sprint("internal error: ", r)), maxErrorLength),
			}
		}
		p.finish(&outcome, started)
	}()

	text, err := p.extract(ctx, ref)
	if err != nil {
		log.Warn("text extraction failed", zap.Error(err))
		return p.fail(outcome, batch.ErrorUnreadableDocument, err)
	}
	log.Debug("text extracted", zap.Int("chars", len([]rune(text))))

	parsed, err := p.parse(ctx, text)
	if err != nil {
		log.Warn("field extraction failed", zap.Error(err))
		return p.fail(outcome, batch.ErrorParse, err)
	}
	outcome.Fields = parsed
	outcome.Candidate = ai.Candidate(parsed)

	assessment, err := p.score(ctx, parsed, ai.JobOrDefault(job))
	if err != nil {
		log.Warn("scoring failed, keeping parsed fields", zap.Error(err))
		zero := scoring.Zero()
		outcome.Scores = &zero
		outcome.Note = "Error occurred during scoring: " + utils.ShortError(err, maxErrorLength)
		outcome.ErrorKind = batch.ErrorScoring
		outcome.Status = batch.ItemCompleted
		return outcome
	}

	scores := scoring.Compute(assessment.Scores)
	outcome.Scores = &scores
	outcome.Explanations = assessment.Explanations
	outcome.Status = batch.ItemCompleted

	log.Info("document processed", zap.Float64("total_score", scores.Total))
	return outcome
}

func (p *Processor) extract(ctx context.Context, ref document.Ref) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.extractor.Extract(callCtx, ref)
}

func (p *Processor) parse(ctx context.Context, text string) (ai.ParsedResume, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	parsed, err := p.fields.ExtractFields(callCtx, text)
	if err != nil {
		return nil, err
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("%w: empty field set", ai.ErrParse)
	}
	return parsed.Normalize(), nil
}

func (p *Processor) score(ctx context.Context, parsed ai.ParsedResume, job string) (*ai.Assessment, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	assessment, err := p.scorer.Score(callCtx, parsed, job)
	if err != nil {
		return nil, err
	}
	if assessment == nil {
		return nil, fmt.Errorf("%w: empty assessment", ai.ErrScoring)
	}
	return assessment, nil
}

func (p *Processor) fail(outcome batch.ItemOutcome, kind batch.ErrorKind, err error) batch.ItemOutcome {
	outcome.Status = batch.ItemFailed
	outcome.ErrorKind = kind
	outcome.Error = utils.ShortError(err, maxErrorLength)
	outcome.Fields = nil
	outcome.Scores = nil
	return outcome
}

func (p *Processor) finish(outcome *batch.ItemOutcome, started time.Time) {
	end := p.now()
	outcome.Duration = end.Sub(started)
	outcome.ProcessingTime = scoring.Round2(outcome.Duration.Seconds())
	outcome.CompletedAt = end
}
