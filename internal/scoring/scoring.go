// Package scoring turns per-category scores into the weighted total used for ranking.
package scoring

import "math"

// Category weights. They sum to 1.
const (
	WeightEducation          = 0.15
	WeightWorkExperience     = 0.25
	WeightTechnicalSkills    = 0.35
	WeightCertifications     = 0.05
	WeightProjects           = 0.15
	WeightLanguagesAndSkills = 0.05
)

// Raw holds category scores as returned by a scorer, before clamping.
type Raw struct {
	Education          float64 `mapstructure:"education_score" json:"education_score"`
	WorkExperience     float64 `mapstructure:"work_experience_score" json:"work_experience_score"`
	TechnicalSkills    float64 `mapstructure:"technical_skills_score" json:"technical_skills_score"`
	Certifications     float64 `mapstructure:"certifications_score" json:"certifications_score"`
	Projects           float64 `mapstructure:"projects_score" json:"projects_score"`
	LanguagesAndSkills float64 `mapstructure:"languages_and_skills_score" json:"languages_and_skills_score"`
}

// Scores are the six integer category scores in [0,100] plus the weighted total.
type Scores struct {
	Education          int     `json:"education_score"`
	WorkExperience     int     `json:"work_experience_score"`
	TechnicalSkills    int     `json:"technical_skills_score"`
	Certifications     int     `json:"certifications_score"`
	Projects           int     `json:"projects_score"`
	LanguagesAndSkills int     `json:"languages_and_skills_score"`
	Total              float64 `json:"total_score"`
}

// Compute clamps every category into [0,100] and derives the weighted total.
func Compute(raw Raw) Scores {
	s := Scores{
		Education:          Clamp(raw.Education),
		WorkExperience:     Clamp(raw.WorkExperience),
		TechnicalSkills:    Clamp(raw.TechnicalSkills),
		Certifications:     Clamp(raw.Certifications),
		Projects:           Clamp(raw.Projects),
		LanguagesAndSkills: Clamp(raw.LanguagesAndSkills),
	}
	s.Total = WeightedTotal(s)
	return s
}

// Zero is the score set used when scoring is unavailable.
func Zero() Scores {
	return Scores{}
}

// Clamp rounds v to the nearest integer inside [0,100]. NaN maps to 0.
func Clamp(v float64) int {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 100:
		return 100
	default:
		return int(math.Round(v))
	}
}

// WeightedTotal applies the category weights and rounds to two decimals.
func WeightedTotal(s Scores) float64 {
	total := WeightEducation*float64(s.Education) +
		WeightWorkExperience*float64(s.WorkExperience) +
		WeightTechnicalSkills*float64(s.TechnicalSkills) +
		WeightCertifications*float64(s.Certifications) +
		WeightProjects*float64(s.Projects) +
		WeightLanguagesAndSkills*float64(s.LanguagesAndSkills)
	return Round2(total)
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
