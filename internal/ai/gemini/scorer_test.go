package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spigell/resume-batch/internal/ai"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestScorerScore(t *testing.T) {
	stub := &stubGenerator{response: `{
		"education_score": 80,
		"work_experience_score": "70",
		"technical_skills_score": 95.5,
		"certifications_score": 0,
		"projects_score": 60,
		"languages_and_skills_score": 120,
		"AIExplanation": {"education": "BSc in CS", "languages_soft": "Fluent English"}
	}`}

	scorer := NewScorer(stub, 0, zap.NewNop())
	parsed := ai.ParsedResume{"technical_skills": []any{"Go"}}

	assessment, err := scorer.Score(context.Background(), parsed, "Senior Go engineer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if assessment.Scores.Education != 80 || assessment.Scores.WorkExperience != 70 {
		t.Fatalf("unexpected scores: %+v", assessment.Scores)
	}
	if assessment.Scores.TechnicalSkills != 95.5 || assessment.Scores.LanguagesAndSkills != 120 {
		t.Fatalf("expected raw values to be preserved before clamping: %+v", assessment.Scores)
	}
	if assessment.Explanations[ai.ExplainEducation] != "BSc in CS" {
		t.Fatalf("unexpected explanations: %v", assessment.Explanations)
	}

	if stub.lastSystem != scorePrompt {
		t.Fatalf("expected scoring prompt as system instruction")
	}
	if !strings.Contains(stub.lastMessage, "JOB REQUIREMENTS:\nSenior Go engineer") {
		t.Fatalf("expected job requirements in message, got %q", stub.lastMessage)
	}
	if !strings.Contains(stub.lastMessage, `"technical_skills"`) {
		t.Fatalf("expected parsed resume in message")
	}
}

func TestScorerUsesDefaultJob(t *testing.T) {
	stub := &stubGenerator{response: `{"education_score": 1}`}
	if _, err := NewScorer(stub, 0, nil).Score(context.Background(), ai.ParsedResume{}, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stub.lastMessage, ai.DefaultJobRequirement) {
		t.Fatalf("expected default job requirement in message")
	}
}

func TestScorerTruncatesRequirements(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	stub := &stubGenerator{response: `{"education_score": 1}`}

	job := strings.Repeat("ж", MaxRequirementsLength+10)
	if _, err := NewScorer(stub, 0, zap.New(core)).Score(context.Background(), ai.ParsedResume{}, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(stub.lastMessage, strings.Repeat("ж", MaxRequirementsLength+1)) {
		t.Fatalf("expected requirements to be truncated")
	}
	if observed.FilterMessage("job requirements truncated").Len() != 1 {
		t.Fatalf("expected truncation warning")
	}
}

func TestScorerFailures(t *testing.T) {
	cases := []struct {
		name string
		stub *stubGenerator
	}{
		{name: "transport error", stub: &stubGenerator{err: errors.New("deadline exceeded")}},
		{name: "invalid json", stub: &stubGenerator{response: "{education_score: 1"}},
		{name: "no scores", stub: &stubGenerator{response: `{"AIExplanation": "n/a"}`}},
		{name: "non numeric score", stub: &stubGenerator{response: `{"education_score": "excellent"}`}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewScorer(tc.stub, 0, nil).Score(context.Background(), ai.ParsedResume{}, "job")
			if !errors.Is(err, ai.ErrScoring) {
				t.Fatalf("expected ErrScoring, got %v", err)
			}
		})
	}
}
