package gemini

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mitchellh/mapstructure"
	"github.com/spigell/resume-batch/internal/ai"
	"github.com/spigell/resume-batch/internal/scoring"
	"github.com/spigell/resume-batch/internal/utils"
	"go.uber.org/zap"
)

//go:embed prompts/compare.md
var comparePrompt string

const (
	compareRequirementsLength = 3000
	compareSummaryLength      = 200
	notAvailable              = "Not available"
)

// Comparer ranks already scored candidates with Gemini.
type Comparer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewComparer(generator contentGenerator, maxLogLength int, logger *zap.Logger) *Comparer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Comparer{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// Compare implements ai.Comparer. Candidates the model skipped get placeholder
// analysis, unknown ones are dropped, and ranks are renumbered 1..n.
func (c *Comparer) Compare(ctx context.Context, req ai.CompareRequest) (*ai.Comparison, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	message := buildCompareMessage(req)

	c.logger.Info("sending comparison request", zap.Int("candidates", len(req.Candidates)))
	c.logger.Debug("gemini compare request",
		zap.Int("prompt_length", utf8.RuneCountInString(message)),
		zap.String("prompt_preview", utils.TruncateForLog(message, c.maxLogLen)),
	)

	raw, err := c.generator.GenerateContent(ctx, comparePrompt, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrCompare, err)
	}

	c.logger.Debug("gemini compare response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, c.maxLogLen)),
	)

	comparison, err := c.parseCompareResponse(raw, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrCompare, err)
	}
	return comparison, nil
}

func buildCompareMessage(req ai.CompareRequest) string {
	var b strings.Builder

	b.WriteString("# JOB INFORMATION\n\n")
	fmt.Fprintf(&b, "Position: %s\n", orNotAvailable(req.JobTitle))
	fmt.Fprintf(&b, "Level: %s\n", orNotAvailable(req.Level))
	fmt.Fprintf(&b, "Specialization: %s\n", orNotAvailable(req.Specialization))
	fmt.Fprintf(&b, "Required Skills: %s\n\n", orNotAvailable(req.Skills))
	b.WriteString("Job Requirements:\n")
	b.WriteString(truncateRunes(strings.TrimSpace(ai.JobOrDefault(req.Requirements)), compareRequirementsLength))
	b.WriteString("\n\nEvaluation Criteria (with weights):\n")
	if len(req.Criteria) == 0 {
		b.WriteString("  - none\n")
	}
	for _, cr := range req.Criteria {
		fmt.Fprintf(&b, "  - %s: %s%%\n", cr.Name, strconv.FormatFloat(scoring.Round2(cr.Weight*100), 'f', -1, 64))
	}

	b.WriteString("\n# CANDIDATE INFORMATION\n")
	for i, cand := range req.Candidates {
		b.WriteString("\n")
		writeCandidateBrief(&b, i+1, cand)
	}

	return b.String()
}

func writeCandidateBrief(b *strings.Builder, n int, cand ai.CompareCandidate) {
	name := ai.Candidate(cand.Parsed).FullName
	if name == "" {
		name = fmt.Sprintf("Candidate %d", n)
	}

	fmt.Fprintf(b, "Candidate #%d (applicationId: %s)\n", n, cand.ID)
	fmt.Fprintf(b, "Name: %s\n", name)
	fmt.Fprintf(b, "Total Score: %.1f/100\n", cand.TotalScore)
	fmt.Fprintf(b, "Summary: %s\n", orNotAvailable(truncateRunes(coerceString(cand.Parsed["summary"]), compareSummaryLength)))

	b.WriteString("Work Experience:\n")
	writeBullets(b, entries(cand.Parsed[ai.FieldWorkExperience], 3, func(m map[string]any) string {
		return fmt.Sprintf("%s at %s (%s)", coerceString(m["title"]), coerceString(m["company"]), coerceString(m["duration"]))
	}))

	b.WriteString("Education:\n")
	writeBullets(b, entries(cand.Parsed[ai.FieldEducation], 2, func(m map[string]any) string {
		return fmt.Sprintf("%s - %s", coerceString(m["degree"]), coerceString(m["school"]))
	}))

	b.WriteString("Skills:\n")
	fmt.Fprintf(b, "  Matched: %s\n", orNotAvailable(cand.MatchSkills))
	fmt.Fprintf(b, "  Missing: %s\n", orNotAvailable(cand.MissingSkills))
	fmt.Fprintf(b, "  Technical: %s\n", orNotAvailable(strings.Join(skills(cand.Parsed[ai.FieldTechnicalSkills], 10), ", ")))
}

func writeBullets(b *strings.Builder, lines []string) {
	if len(lines) == 0 {
		lines = []string{notAvailable}
	}
	for _, line := range lines {
		fmt.Fprintf(b, "  - %s\n", line)
	}
}

// entries formats up to limit object entries of a parsed list section.
func entries(v any, limit int, format func(map[string]any) string) []string {
	list, _ := v.([]any)
	var out []string
	for _, item := range list {
		if len(out) == limit {
			break
		}
		if m, ok := item.(map[string]any); ok {
			out = append(out, format(m))
		}
	}
	return out
}

// skills flattens either a list or a map of category lists.
func skills(v any, limit int) []string {
	var out []string
	add := func(list []any) {
		for _, item := range list {
			if len(out) == limit {
				return
			}
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
	}

	switch val := v.(type) {
	case []any:
		add(val)
	case map[string]any:
		for _, key := range slices.Sorted(maps.Keys(val)) {
			if list, ok := val[key].([]any); ok {
				add(list)
			}
		}
	}
	return out
}

func (c *Comparer) parseCompareResponse(raw string, req ai.CompareRequest) (*ai.Comparison, error) {
	data, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	list, ok := data["candidates"].([]any)
	if !ok {
		return nil, fmt.Errorf("response has no candidates list")
	}

	byID := make(map[string]ai.CandidateAnalysis, len(list))
	for i, entry := range list {
		fields, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("candidate %d is not an object", i)
		}
		id := coerceString(fields["applicationId"])
		if id == "" {
			return nil, fmt.Errorf("candidate %d has no applicationId", i)
		}
		analysis, ok := fields["analysis"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("candidate %s has no analysis", id)
		}

		result, err := c.analysis(id, analysis, req.Criteria)
		if err != nil {
			return nil, err
		}
		byID[id] = result
	}

	out := &ai.Comparison{Candidates: make([]ai.CandidateAnalysis, 0, len(req.Candidates))}
	for _, cand := range req.Candidates {
		id := strings.TrimSpace(cand.ID)
		result, ok := byID[id]
		if !ok {
			c.logger.Warn("candidate missing from comparison response", zap.String("application_id", id))
			result = c.placeholder(id, req.Criteria)
		}
		out.Candidates = append(out.Candidates, result)
	}
	out.NormalizeRanks()

	return out, nil
}

func (c *Comparer) analysis(id string, fields map[string]any, criteria []ai.Criterion) (ai.CandidateAnalysis, error) {
	result := ai.CandidateAnalysis{
		ID:             id,
		OverallSummary: c.text(id, fields, "overallSummary"),
		JobFit:         c.text(id, fields, "jobFit"),
	}

	if len(criteria) > 0 {
		result.Criteria = make(map[string]string, len(criteria))
		for _, cr := range criteria {
			result.Criteria[cr.Name] = c.text(id, fields, cr.Name)
		}
	}

	rec, ok := fields["recommendation"]
	if !ok || rec == nil {
		c.logger.Warn("comparison field missing", zap.String("application_id", id), zap.String("field", "recommendation"))
		result.Recommendation = ai.Recommendation{Reason: "Missing ranking information"}
		return result, nil
	}
	if err := mapstructure.WeakDecode(rec, &result.Recommendation); err != nil {
		return ai.CandidateAnalysis{}, fmt.Errorf("decode recommendation of %s: %w", id, err)
	}
	result.Recommendation.Reason = strings.TrimSpace(result.Recommendation.Reason)

	return result, nil
}

func (c *Comparer) text(id string, fields map[string]any, key string) string {
	if s := coerceString(fields[key]); s != "" {
		return s
	}
	c.logger.Warn("comparison field missing", zap.String("application_id", id), zap.String("field", key))
	return "No information available about " + key
}

func (c *Comparer) placeholder(id string, criteria []ai.Criterion) ai.CandidateAnalysis {
	result, _ := c.analysis(id, map[string]any{}, criteria)
	return result
}

func orNotAvailable(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
