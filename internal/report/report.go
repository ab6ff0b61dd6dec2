// Package report aggregates batch outcomes and renders them for people and
// spreadsheets.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/spigell/resume-batch/internal/batch"
	"github.com/spigell/resume-batch/internal/scoring"
)

// Summary holds the aggregate statistics of a batch.
type Summary struct {
	Total       int                 `json:"total"`
	Succeeded   int                 `json:"succeeded"`
	Failed      int                 `json:"failed"`
	Elapsed     time.Duration       `json:"-"`
	ElapsedSec  float64             `json:"elapsed_seconds"`
	WorkSec     float64             `json:"processing_seconds"`
	MeanSec     float64             `json:"mean_processing_seconds"`
	SuccessRate float64             `json:"success_rate"`
	Best        *batch.ItemOutcome  `json:"best,omitempty"`
	Worst       *batch.ItemOutcome  `json:"worst,omitempty"`
	Failures    []batch.ItemOutcome `json:"failures,omitempty"`
}

// Summarize computes counts, timings and the best and worst completed items.
// Ties on the total go to the item that completed first.
func Summarize(outcomes []batch.ItemOutcome, start, end time.Time) Summary {
	s := Summary{Total: len(outcomes)}
	if !start.IsZero() && end.After(start) {
		s.Elapsed = end.Sub(start)
		s.ElapsedSec = scoring.Round2(s.Elapsed.Seconds())
	}

	var work float64
	for i := range outcomes {
		o := outcomes[i]
		work += o.ProcessingTime

		switch o.Status {
		case batch.ItemCompleted:
			s.Succeeded++
			if o.Scores == nil {
				continue
			}
			if s.Best == nil || better(o, *s.Best) {
				s.Best = &outcomes[i]
			}
			if s.Worst == nil || better(*s.Worst, o) {
				s.Worst = &outcomes[i]
			}
		case batch.ItemFailed:
			s.Failed++
			s.Failures = append(s.Failures, o)
		}
	}

	s.WorkSec = scoring.Round2(work)
	if s.Total > 0 {
		s.MeanSec = scoring.Round2(work / float64(s.Total))
		s.SuccessRate = math.Round(float64(s.Succeeded)/float64(s.Total)*1000) / 10
	}
	sort.SliceStable(s.Failures, func(i, j int) bool {
		return s.Failures[i].Index < s.Failures[j].Index
	})

	return s
}

func better(a, b batch.ItemOutcome) bool {
	if a.Total() != b.Total() {
		return a.Total() > b.Total()
	}
	return a.CompletedAt.Before(b.CompletedAt)
}

// Order returns completed items by total score descending, then failed items
// in submission order. The input is not modified.
func Order(outcomes []batch.ItemOutcome) []batch.ItemOutcome {
	out := make([]batch.ItemOutcome, len(outcomes))
	copy(out, outcomes)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		aDone, bDone := a.Status == batch.ItemCompleted, b.Status == batch.ItemCompleted
		switch {
		case aDone && bDone:
			return better(a, b)
		case aDone != bDone:
			return aDone
		default:
			return a.Index < b.Index
		}
	})

	return out
}
