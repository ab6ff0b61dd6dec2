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

func compareRequest() ai.CompareRequest {
	return ai.CompareRequest{
		JobTitle:     "Backend Engineer",
		Level:        "Senior",
		Requirements: "Go, PostgreSQL, Kubernetes",
		Criteria:     []ai.Criterion{{ID: 1, Name: "Go experience", Weight: 0.7}},
		Candidates: []ai.CompareCandidate{
			{
				ID:         "101",
				TotalScore: 81.5,
				Parsed: ai.ParsedResume{
					ai.FieldInfo:            map[string]any{"fullName": "Ada Lovelace"},
					ai.FieldWorkExperience:  []any{map[string]any{"title": "Engineer", "company": "Acme", "duration": "3y"}},
					ai.FieldTechnicalSkills: map[string]any{"languages": []any{"Go", "SQL"}},
				},
				MatchSkills: "Go",
			},
			{ID: "102", TotalScore: 64, Parsed: ai.ParsedResume{}},
			{ID: "103", TotalScore: 70, Parsed: ai.ParsedResume{}},
		},
	}
}

func TestCompare(t *testing.T) {
	stub := &stubGenerator{response: `{
		"candidates": [
			{"applicationId": 102, "analysis": {"overallSummary": "Junior", "jobFit": "Weak", "Go experience": "Little", "recommendation": {"rank": 2, "reason": "Less experience"}}},
			{"applicationId": "101", "analysis": {"overallSummary": "Senior", "jobFit": "Strong", "Go experience": "Years", "recommendation": {"rank": "2", "reason": "Best fit"}}},
			{"applicationId": "999", "analysis": {"overallSummary": "Unknown", "recommendation": {"rank": 1}}}
		]
	}`}

	core, logs := observer.New(zapcore.WarnLevel)
	got, err := NewComparer(stub, 0, zap.New(core)).Compare(context.Background(), compareRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %+v", got.Candidates)
	}
	order := []string{got.Candidates[0].ID, got.Candidates[1].ID, got.Candidates[2].ID}
	if order[0] != "101" || order[1] != "102" || order[2] != "103" {
		t.Fatalf("unexpected ranking %v", order)
	}
	for i, c := range got.Candidates {
		if c.Recommendation.Rank != i+1 {
			t.Fatalf("expected unique ranks 1..n, got %+v", got.Candidates)
		}
	}
	if got.Candidates[0].Criteria["Go experience"] != "Years" || got.Candidates[0].JobFit != "Strong" {
		t.Fatalf("unexpected analysis %+v", got.Candidates[0])
	}

	missing := got.Candidates[2]
	if missing.OverallSummary != "No information available about overallSummary" || missing.Recommendation.Reason != "Missing ranking information" {
		t.Fatalf("expected placeholder analysis, got %+v", missing)
	}
	if logs.FilterMessage("candidate missing from comparison response").Len() != 1 {
		t.Fatalf("expected a warning for the skipped candidate")
	}

	if stub.lastSystem != comparePrompt {
		t.Fatalf("expected compare prompt as system instruction")
	}
	for _, want := range []string{
		"Position: Backend Engineer",
		"  - Go experience: 70%",
		"Candidate #1 (applicationId: 101)",
		"Name: Ada Lovelace",
		"Total Score: 81.5/100",
		"  - Engineer at Acme (3y)",
		"  Technical: Go, SQL",
		"Name: Candidate 2",
	} {
		if !strings.Contains(stub.lastMessage, want) {
			t.Fatalf("expected %q in message:\n%s", want, stub.lastMessage)
		}
	}
}

func TestCompareFailures(t *testing.T) {
	tooFew := compareRequest()
	tooFew.Candidates = tooFew.Candidates[:1]

	tooMany := compareRequest()
	for i := 0; i < 3; i++ {
		tooMany.Candidates = append(tooMany.Candidates, ai.CompareCandidate{ID: string(rune('a' + i))})
	}

	cases := []struct {
		name string
		req  ai.CompareRequest
		stub *stubGenerator
		want error
	}{
		{name: "one candidate", req: tooFew, stub: &stubGenerator{}, want: ai.ErrCandidateCount},
		{name: "six candidates", req: tooMany, stub: &stubGenerator{}, want: ai.ErrCandidateCount},
		{name: "remote failure", req: compareRequest(), stub: &stubGenerator{err: errors.New("timeout")}, want: ai.ErrCompare},
		{name: "not json", req: compareRequest(), stub: &stubGenerator{response: "I cannot compare"}, want: ai.ErrCompare},
		{name: "no candidates list", req: compareRequest(), stub: &stubGenerator{response: `{"status": "success"}`}, want: ai.ErrCompare},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewComparer(tc.stub, 0, nil).Compare(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
