// Package scoring turns execution statistics into a six-category quality
// score, verdict and issue list.
package scoring

import (
	"fmt"
	"math"
)

// Category is one of the six scored quality dimensions.
type Category string

const (
	Design          Category = "design"
	Content         Category = "content"
	Completeness    Category = "completeness"
	Professionalism Category = "professionalism"
	Usability       Category = "usability"
	Performance     Category = "performance"
)

// Categories lists the six scored dimensions in report order.
var Categories = []Category{Design, Content, Completeness, Professionalism, Usability, Performance}

// Verdict tiers.
const (
	VerdictPoor       = "Poor"
	VerdictOK         = "OK"
	VerdictGood       = "Good"
	VerdictExcellent  = "Excellent"
	VerdictWorldClass = "World-Class"
)

// Severity of a QualityIssue.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
)

// IssueCutoff is the category score below which an issue is raised.
const IssueCutoff = 6.0

// QualityIssue flags one weak category.
type QualityIssue struct {
	Category    Category `json:"category"`
	Severity    string   `json:"severity"`
	Score       float64  `json:"score"`
	Description string   `json:"description"`
}

// QualityScore is the scored outcome of one website attempt.
type QualityScore struct {
	WebsiteID      string               `json:"website_id"`
	Categories     map[Category]float64 `json:"categories"`
	OverallScore   float64              `json:"overall_score"`
	Verdict        string               `json:"verdict"`
	MeetsThreshold bool                 `json:"meets_threshold"`
	Issues         []QualityIssue       `json:"issues"`
}

// Stats is what the scorer reads from an execution.
type Stats struct {
	WebsiteID string
	Success   int
	Total     int
	Snapshots []string // captured DOM documents, newest last
}

// Heuristic adjusts the base score per category. Offsets are added to the
// base and the sum is clamped to [0,10].
type Heuristic interface {
	Offsets(s Stats, base float64) map[Category]float64
}

// Scorer computes QualityScores with a pluggable heuristic.
type Scorer struct {
	heuristic Heuristic
	threshold float64
}

// NewScorer creates a Scorer. A nil heuristic scores every category at the base.
func NewScorer(h Heuristic, threshold float64) *Scorer {
	return &Scorer{heuristic: h, threshold: threshold}
}

// Threshold returns the configured quality threshold.
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Evaluate scores one execution.
func (s *Scorer) Evaluate(st Stats) QualityScore {
	base := 0.0
	if st.Total > 0 {
		base = 10 * float64(st.Success) / float64(st.Total)
	}
	var offsets map[Category]float64
	if s.heuristic != nil {
		offsets = s.heuristic.Offsets(st, base)
	}

	cats := make(map[Category]float64, len(Categories))
	for _, c := range Categories {
		cats[c] = Clamp(base + offsets[c])
	}
	overall := Mean(cats)
	return QualityScore{
		WebsiteID:      st.WebsiteID,
		Categories:     cats,
		OverallScore:   overall,
		Verdict:        VerdictFor(overall),
		MeetsThreshold: overall >= s.threshold,
		Issues:         IssuesFor(cats),
	}
}

// Clamp bounds v to [0,10].
func Clamp(v float64) float64 {
	return math.Max(0, math.Min(10, v))
}

// Mean is the unweighted mean of the six categories.
func Mean(cats map[Category]float64) float64 {
	sum := 0.0
	for _, c := range Categories {
		sum += cats[c]
	}
	return sum / float64(len(Categories))
}

// VerdictFor maps an overall score to its tier.
func VerdictFor(overall float64) string {
	switch {
	case overall < 4:
		return VerdictPoor
	case overall < 6:
		return VerdictOK
	case overall < 8:
		return VerdictGood
	case overall < 9:
		return VerdictExcellent
	default:
		return VerdictWorldClass
	}
}

// SeverityFor maps a weak category score to an issue severity.
func SeverityFor(score float64) string {
	switch {
	case score < 4:
		return SeverityCritical
	case score < 5:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// IssuesFor raises one issue per category scoring below IssueCutoff.
func IssuesFor(cats map[Category]float64) []QualityIssue {
	var issues []QualityIssue
	for _, c := range Categories {
		v := cats[c]
		if v >= IssueCutoff {
			continue
		}
		issues = append(issues, QualityIssue{
			Category:    c,
			Severity:    SeverityFor(v),
			Score:       v,
			Description: fmt.Sprintf("%s scored %.1f/10", c, v),
		})
	}
	return issues
}
