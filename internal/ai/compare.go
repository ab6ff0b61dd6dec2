package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Bounds on the number of candidates in one comparison.
const (
	MinCompareCandidates = 2
	MaxCompareCandidates = 5
)

var (
	// ErrCandidateCount is returned when a comparison has too few or too many candidates.
	ErrCandidateCount = errors.New("invalid number of candidates")
	// ErrCompare marks failures of the remote comparison call.
	ErrCompare = errors.New("comparison error")
)

// CompareCandidate is an already processed resume taking part in a comparison.
type CompareCandidate struct {
	ID            string       `json:"applicationId"`
	Parsed        ParsedResume `json:"parsedData"`
	TotalScore    float64      `json:"totalScore"`
	MatchSkills   string       `json:"matchSkills,omitempty"`
	MissingSkills string       `json:"missingSkills,omitempty"`
}

// CompareRequest describes the position and the candidates to rank.
type CompareRequest struct {
	JobTitle       string             `json:"jobTitle,omitempty"`
	Level          string             `json:"level,omitempty"`
	Specialization string             `json:"specialization,omitempty"`
	Skills         string             `json:"skills,omitempty"`
	Requirements   string             `json:"requirements,omitempty"`
	Criteria       []Criterion        `json:"criteria,omitempty"`
	Candidates     []CompareCandidate `json:"candidates"`
}

// Validate checks the candidate count and that every candidate has a unique id.
// Criteria are optional; when present they must be valid.
func (r CompareRequest) Validate() error {
	n := len(r.Candidates)
	if n < MinCompareCandidates || n > MaxCompareCandidates {
		return fmt.Errorf("%w: got %d, want %d to %d", ErrCandidateCount, n, MinCompareCandidates, MaxCompareCandidates)
	}

	seen := make(map[string]struct{}, n)
	for i, c := range r.Candidates {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return fmt.Errorf("candidate #%d has no applicationId", i+1)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate applicationId %q", id)
		}
		seen[id] = struct{}{}
	}

	if len(r.Criteria) > 0 {
		return ValidateCriteria(r.Criteria)
	}
	return nil
}

// Recommendation places a candidate in the comparison. Rank 1 is the best.
type Recommendation struct {
	Rank   int    `json:"rank"`
	Reason string `json:"reason"`
}

// CandidateAnalysis is the per-candidate part of a comparison. Criteria holds
// one analysis per requested criterion name.
type CandidateAnalysis struct {
	ID             string            `json:"applicationId"`
	OverallSummary string            `json:"overallSummary"`
	JobFit         string            `json:"jobFit"`
	Criteria       map[string]string `json:"criteria,omitempty"`
	Recommendation Recommendation    `json:"recommendation"`
}

// Comparison holds the candidates ordered by rank.
type Comparison struct {
	Candidates []CandidateAnalysis `json:"candidates"`
}

// Comparer ranks several candidates against one position.
type Comparer interface {
	Compare(ctx context.Context, req CompareRequest) (*Comparison, error)
}

// NormalizeRanks orders candidates by rank and renumbers them 1..n. Missing or
// non-positive ranks sort last; ties keep their current order.
func (c *Comparison) NormalizeRanks() {
	key := func(rank int) int {
		if rank <= 0 {
			return math.MaxInt
		}
		return rank
	}

	sort.SliceStable(c.Candidates, func(i, j int) bool {
		return key(c.Candidates[i].Recommendation.Rank) < key(c.Candidates[j].Recommendation.Rank)
	})
	for i := range c.Candidates {
		c.Candidates[i].Recommendation.Rank = i + 1
	}
}
