// Package report accumulates per-attempt results, builds session reports and
// analyzes score trends across sessions.
package report

import (
	"time"

	"github.com/lucasnoah/sitefactory/internal/learning"
	"github.com/lucasnoah/sitefactory/internal/scoring"
)

// WebsiteReport is the persisted record of one website attempt.
type WebsiteReport struct {
	SessionID          string               `json:"session_id"`
	WebsiteID          string               `json:"website_id"`
	Index              int                  `json:"index"`
	Industry           string               `json:"industry"`
	Template           string               `json:"template"`
	BusinessName       string               `json:"business_name"`
	BaseURL            string               `json:"base_url,omitempty"`
	Score              scoring.QualityScore `json:"score"`
	Success            bool                 `json:"success"`
	CommandsTotal      int                  `json:"commands_total"`
	CommandsSucceeded  int                  `json:"commands_succeeded"`
	CommandsFailed     int                  `json:"commands_failed"`
	CommandsSkipped    int                  `json:"commands_skipped"`
	Failures           int                  `json:"failures"`
	Recovered          int                  `json:"recovered"`
	LearningsGenerated int                  `json:"learnings_generated"`
	LearningsApplied   int                  `json:"learnings_applied"`
	Screenshots        []string             `json:"screenshots,omitempty"`
	DurationMS         int64                `json:"duration_ms"`
	Error              string               `json:"error,omitempty"`
	Timestamp          time.Time            `json:"timestamp"`
}

// Summary is the input to GenerateSessionReport.
type Summary struct {
	SessionID          string
	Status             string
	TargetCount        int
	StartedAt          time.Time
	CompletedAt        time.Time
	Websites           []WebsiteReport
	LearningsGenerated int
	TopLearnings       []learning.Learning
	PreviousAverage    *float64
}

// SessionReport aggregates a finished session. It is built once and never
// mutated afterwards.
type SessionReport struct {
	SessionID               string              `json:"session_id"`
	Status                  string              `json:"status"`
	TargetCount             int                 `json:"target_count"`
	StartedAt               time.Time           `json:"started_at"`
	CompletedAt             time.Time           `json:"completed_at"`
	DurationMS              int64               `json:"duration_ms"`
	TotalWebsites           int                 `json:"total_websites"`
	Succeeded               int                 `json:"succeeded"`
	Failed                  int                 `json:"failed"`
	AverageScore            float64             `json:"average_score"`
	BestScore               float64             `json:"best_score"`
	WorstScore              float64             `json:"worst_score"`
	CommandsTotal           int                 `json:"commands_total"`
	CommandsSucceeded       int                 `json:"commands_succeeded"`
	CommandSuccessRate      float64             `json:"command_success_rate"`
	TotalFailures           int                 `json:"total_failures"`
	LearningsGenerated      int                 `json:"learnings_generated"`
	TopLearnings            []learning.Learning `json:"top_learnings"`
	Recommendations         []string            `json:"recommendations"`
	ImprovementFromPrevious *float64            `json:"improvement_from_previous,omitempty"`
	Websites                []WebsiteReport     `json:"websites"`
}

// Direction classifies a score trend.
type Direction string

const (
	Improving        Direction = "improving"
	Stable           Direction = "stable"
	Declining        Direction = "declining"
	InsufficientData Direction = "insufficient_data"
)

// TrendPoint is one session's average score in a trend series.
type TrendPoint struct {
	SessionID    string    `json:"session_id"`
	StartedAt    time.Time `json:"started_at"`
	AverageScore float64   `json:"average_score"`
}

// Trend is the result of AnalyzeTrends.
type Trend struct {
	Points     []TrendPoint `json:"points"`
	MeanDelta  float64      `json:"mean_delta"`
	Direction  Direction    `json:"direction"`
	Prediction float64      `json:"prediction"`
}
