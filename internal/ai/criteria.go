package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/resume-batch/internal/scoring"
)

// ErrInvalidCriteria is returned for an empty or malformed criteria list.
var ErrInvalidCriteria = errors.New("invalid criteria")

// Criterion is a caller-defined scoring dimension. Weight is a fraction of the total.
type Criterion struct {
	ID     int     `json:"criteriaId"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// CriterionScore is the model's verdict on one criterion.
type CriterionScore struct {
	CriterionID int     `json:"criteriaId"`
	Matched     float64 `json:"matched"`
	Score       int     `json:"score"`
	Note        string  `json:"AINote"`
}

// CriteriaAssessment is the result of scoring against custom criteria. Total is
// always recomputed from the caller's weights, never taken from the model.
type CriteriaAssessment struct {
	Explanation string           `json:"AIExplanation"`
	Items       []CriterionScore `json:"items"`
	Total       float64          `json:"total_score"`
}

// CriteriaScorer rates a parsed resume against caller-supplied criteria.
type CriteriaScorer interface {
	ScoreCriteria(ctx context.Context, parsed ParsedResume, job string, criteria []Criterion) (*CriteriaAssessment, error)
}

// ValidateCriteria requires at least one criterion, unique ids, non-blank
// names and weights inside [0,1].
func ValidateCriteria(criteria []Criterion) error {
	if len(criteria) == 0 {
		return fmt.Errorf("%w: at least one criterion is required", ErrInvalidCriteria)
	}

	seen := make(map[int]struct{}, len(criteria))
	for _, c := range criteria {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: criterion %d has no name", ErrInvalidCriteria, c.ID)
		}
		if c.Weight < 0 || c.Weight > 1 {
			return fmt.Errorf("%w: criterion %q weight %v is outside [0,1]", ErrInvalidCriteria, c.Name, c.Weight)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate criterion id %d", ErrInvalidCriteria, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// CriteriaTotal sums score times weight, rounded to two decimals. Items for
// unknown criteria weigh nothing.
func CriteriaTotal(items []CriterionScore, criteria []Criterion) float64 {
	weights := make(map[int]float64, len(criteria))
	for _, c := range criteria {
		weights[c.ID] = c.Weight
	}

	var total float64
	for _, item := range items {
		total += float64(item.Score) * weights[item.CriterionID]
	}
	return scoring.Round2(total)
}
