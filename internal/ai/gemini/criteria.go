package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mitchellh/mapstructure"
	"github.com/spigell/resume-batch/internal/ai"
	"github.com/spigell/resume-batch/internal/scoring"
	"github.com/spigell/resume-batch/internal/utils"
	"go.uber.org/zap"
)

//go:embed prompts/criteria.md
var criteriaPrompt string

var criterionItemKeys = []string{"criteriaId", "matched", "score", "AINote"}

type criterionItem struct {
	CriterionID int     `mapstructure:"criteriaId"`
	Matched     float64 `mapstructure:"matched"`
	Score       float64 `mapstructure:"score"`
	Note        string  `mapstructure:"AINote"`
}

// ScoreCriteria implements ai.CriteriaScorer. The total is recomputed from the
// given weights. Every failure wraps ai.ErrScoring.
func (s *Scorer) ScoreCriteria(ctx context.Context, parsed ai.ParsedResume, job string, criteria []ai.Criterion) (*ai.CriteriaAssessment, error) {
	if err := ai.ValidateCriteria(criteria); err != nil {
		return nil, err
	}

	resumeJSON, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal parsed resume: %w", ai.ErrScoring, err)
	}
	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal criteria: %w", ai.ErrScoring, err)
	}

	message := buildCriteriaMessage(s.truncate(ai.JobOrDefault(job)), string(criteriaJSON), string(resumeJSON))

	s.logger.Debug("gemini criteria request",
		zap.Int("criteria", len(criteria)),
		zap.Int("prompt_length", utf8.RuneCountInString(message)),
		zap.String("prompt_preview", utils.TruncateForLog(message, s.maxLogLen)),
	)

	raw, err := s.generator.GenerateContent(ctx, criteriaPrompt, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrScoring, err)
	}

	s.logger.Debug("gemini criteria response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
	)

	assessment, err := parseCriteriaResponse(raw, criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrScoring, err)
	}
	return assessment, nil
}

func buildCriteriaMessage(job, criteriaJSON, resumeJSON string) string {
	var b strings.Builder
	b.WriteString("JOB REQUIREMENTS:\n")
	b.WriteString(strings.TrimSpace(job))
	b.WriteString("\n\nSCORING CRITERIA:\n")
	b.WriteString(criteriaJSON)
	b.WriteString("\n\nCANDIDATE RESUME DATA:\n")
	b.WriteString(resumeJSON)
	return b.String()
}

func parseCriteriaResponse(raw string, criteria []ai.Criterion) (*ai.CriteriaAssessment, error) {
	data, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	list, ok := data["items"].([]any)
	if !ok {
		return nil, fmt.Errorf("response has no items list")
	}

	known := make(map[int]struct{}, len(criteria))
	for _, c := range criteria {
		known[c.ID] = struct{}{}
	}

	items := make([]ai.CriterionScore, 0, len(list))
	for i, entry := range list {
		fields, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d is not an object", i)
		}
		for _, key := range criterionItemKeys {
			if _, ok := fields[key]; !ok {
				return nil, fmt.Errorf("item %d is missing %q", i, key)
			}
		}

		var item criterionItem
		if err := mapstructure.WeakDecode(fields, &item); err != nil {
			return nil, fmt.Errorf("decode item %d: %w", i, err)
		}
		if _, ok := known[item.CriterionID]; !ok {
			continue
		}

		items = append(items, ai.CriterionScore{
			CriterionID: item.CriterionID,
			Matched:     clampUnit(item.Matched),
			Score:       scoring.Clamp(item.Score),
			Note:        strings.TrimSpace(item.Note),
		})
	}

	return &ai.CriteriaAssessment{
		Explanation: coerceString(data["AIExplanation"]),
		Items:       items,
		Total:       ai.CriteriaTotal(items, criteria),
	}, nil
}

func clampUnit(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
