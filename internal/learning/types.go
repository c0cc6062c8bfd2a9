package learning

import (
	"time"

	"github.com/lucasnoah/sitefactory/internal/engine"
	"github.com/lucasnoah/sitefactory/internal/scoring"
)

// Type classifies a learning.
type Type string

const (
	SuccessPattern      Type = "success_pattern"
	FailurePattern      Type = "failure_pattern"
	Improvement         Type = "improvement"
	CommandOptimization Type = "command_optimization"
)

// Learning is one stored insight with a running effectiveness score.
type Learning struct {
	ID                 string    `json:"id"`
	Type               Type      `json:"type"`
	Context            string    `json:"context"`
	Insight            string    `json:"insight"`
	AppliedCount       int       `json:"appliedCount"`
	EffectivenessScore float64   `json:"effectivenessScore"`
	SampleCount        int       `json:"sampleCount"`
	Occurrences        int       `json:"occurrences,omitempty"`
	RelatedWebsiteIDs  []string  `json:"relatedWebsiteIds"`
	SessionID          string    `json:"sessionId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Outcome is everything LearnFromResult reads about one attempt.
type Outcome struct {
	SessionID        string
	WebsiteID        string
	Industry         string
	Template         string
	Score            scoring.QualityScore
	Failures         []engine.FailureEntry
	CommandsExecuted int
}

// Suggestion is an actionable change derived from accumulated learnings.
type Suggestion struct {
	Type           string  `json:"type"`
	Context        string  `json:"context"`
	Description    string  `json:"description"`
	ExpectedImpact float64 `json:"expectedImpact"`
	Confidence     float64 `json:"confidence"`
	Occurrences    int     `json:"occurrences"`
}

// Suggestion types.
const (
	SuggestFixFailure    = "fix_failure_pattern"
	SuggestReuseTemplate = "reuse_template"
)

// Pattern summarizes a learning that was actually applied during a session.
type Pattern struct {
	Type      Type   `json:"type"`
	Context   string `json:"context"`
	Frequency int    `json:"frequency"`
	Outcome   string `json:"outcome"`
}

// ReflectInput is the slice of a session report reflection needs.
type ReflectInput struct {
	SessionID          string
	AverageScore       float64
	PreviousAverage    *float64
	CommandSuccessRate float64
	TopLearnings       []Learning
}

// Reflection is the result of reflecting on a finished session.
type Reflection struct {
	Insights     []string   `json:"insights"`
	Suggestions  []string   `json:"suggestions"`
	Patterns     []Pattern  `json:"patterns"`
	NewLearnings []Learning `json:"newLearnings,omitempty"`
}

// Document is the versioned export format.
type Document struct {
	Version    int        `json:"version"`
	ExportedAt time.Time  `json:"exportedAt"`
	Learnings  []Learning `json:"learnings"`
}

// DocumentVersion is the current export format version.
const DocumentVersion = 1
