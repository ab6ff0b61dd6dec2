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

//go:embed prompts/score.md
var scorePrompt string

// MaxRequirementsLength bounds the job text sent for scoring, in runes.
const MaxRequirementsLength = 5000

var scoreKeys = []string{
	"education_score",
	"work_experience_score",
	"technical_skills_score",
	"certifications_score",
	"projects_score",
	"languages_and_skills_score",
}

// Scorer rates parsed resumes against job requirements with Gemini.
type Scorer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewScorer(generator contentGenerator, maxLogLength int, logger *zap.Logger) *Scorer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scorer{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// Score implements ai.Scorer. Every failure wraps ai.ErrScoring.
func (s *Scorer) Score(ctx context.Context, parsed ai.ParsedResume, job string) (*ai.Assessment, error) {
	resumeJSON, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: marshal parsed resume: %w", ai.ErrScoring, err)
	}

	message := buildScoreMessage(s.truncate(ai.JobOrDefault(job)), string(resumeJSON))

	s.logger.Debug("gemini score request",
		zap.Int("prompt_length", utf8.RuneCountInString(message)),
		zap.String("prompt_preview", utils.TruncateForLog(message, s.maxLogLen)),
	)

	raw, err := s.generator.GenerateContent(ctx, scorePrompt, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrScoring, err)
	}

	s.logger.Debug("gemini score response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
	)

	assessment, err := parseScoreResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrScoring, err)
	}
	return assessment, nil
}

func (s *Scorer) truncate(job string) string {
	runes := []rune(job)
	if len(runes) <= MaxRequirementsLength {
		return job
	}
	s.logger.Warn("job requirements truncated",
		zap.Int("length", len(runes)),
		zap.Int("limit", MaxRequirementsLength),
	)
	return string(runes[:MaxRequirementsLength])
}

func buildScoreMessage(job, resumeJSON string) string {
	var b strings.Builder
	b.WriteString("JOB REQUIREMENTS:\n")
	b.WriteString(strings.TrimSpace(job))
	b.WriteString("\n\nCANDIDATE'S RESUME DATA:\n")
	b.WriteString(resumeJSON)
	return b.String()
}

func parseScoreResponse(raw string) (*ai.Assessment, error) {
	data, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	found := 0
	for _, key := range scoreKeys {
		if v, ok := data[key]; ok && v != nil {
			found++
		}
	}
	if found == 0 {
		return nil, fmt.Errorf("response has no category scores")
	}

	var scores scoring.Raw
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &scores,
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}

	return &ai.Assessment{
		Scores:       scores,
		Explanations: explanations(data["AIExplanation"]),
		Raw:          raw,
	}, nil
}

func explanations(v any) ai.Explanations {
	out := ai.Explanations{}
	switch val := v.(type) {
	case map[string]any:
		for k, text := range val {
			if s := coerceString(text); s != "" {
				out[k] = s
			}
		}
	case nil:
	default:
		if s := coerceString(val); s != "" {
			out["overall"] = s
		}
	}
	return out
}
