package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/spigell/resume-batch/internal/scoring"
)

var (
	// ErrParse marks failures of the remote field extraction call.
	ErrParse = errors.New("parse error")
	// ErrScoring marks failures of the remote scoring call.
	ErrScoring = errors.New("scoring error")
)

// DefaultJobRequirement is used whenever a batch is started without job requirements.
const DefaultJobRequirement = `General Software Development Position:
- Bachelor's degree in Computer Science or related field
- Strong technical skills in programming languages and frameworks
- Relevant work experience in software development
- Good communication and teamwork skills
- Professional certifications are a plus
- Portfolio of completed projects`

// JobOrDefault returns job, or DefaultJobRequirement when job is blank.
func JobOrDefault(job string) string {
	if strings.TrimSpace(job) == "" {
		return DefaultJobRequirement
	}
	return job
}

// Top-level keys of a parsed resume.
const (
	FieldInfo               = "info"
	FieldEducation          = "education"
	FieldWorkExperience     = "work_experience"
	FieldTechnicalSkills    = "technical_skills"
	FieldCertifications     = "certifications"
	FieldProjects           = "projects"
	FieldLanguagesAndSkills = "languages_and_skills"
)

// FieldKeys lists the parsed resume keys in display order.
var FieldKeys = []string{
	FieldInfo,
	FieldEducation,
	FieldWorkExperience,
	FieldTechnicalSkills,
	FieldCertifications,
	FieldProjects,
	FieldLanguagesAndSkills,
}

// ParsedResume is the structured mapping produced by field extraction. Values are
// whatever JSON the model produced for that section, or nil when absent.
type ParsedResume map[string]any

// Normalize returns a copy holding every known key, missing ones set to nil.
// Unknown keys are preserved.
func (p ParsedResume) Normalize() ParsedResume {
	out := make(ParsedResume, len(p)+len(FieldKeys))
	for k, v := range p {
		out[k] = v
	}
	for _, k := range FieldKeys {
		if _, ok := out[k]; !ok {
			out[k] = nil
		}
	}
	return out
}

// Explanation keys returned by the scorer.
const (
	ExplainEducation       = "education"
	ExplainWorkExperience  = "work_experience"
	ExplainTechnicalSkills = "technical_skills"
	ExplainCertifications  = "certifications"
	ExplainProjects        = "projects"
	ExplainLanguagesSoft   = "languages_soft"
)

// Explanations are short per-category justifications keyed by category.
type Explanations map[string]string

// Assessment is the scorer output before clamping and weighting.
type Assessment struct {
	Scores       scoring.Raw
	Explanations Explanations
	Raw          string
}

// FieldExtractor converts resume text into structured fields.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string) (ParsedResume, error)
}

// Scorer rates parsed resume fields against job requirements.
type Scorer interface {
	Score(ctx context.Context, parsed ParsedResume, job string) (*Assessment, error)
}
