// Package session persists test sessions and the crash-recovery checkpoint.
package session

import (
	"time"

	"github.com/lucasnoah/sitefactory/internal/engine"
	"github.com/lucasnoah/sitefactory/internal/scoring"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
)

// Terminal reports whether no further attempts will run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPaused
}

// Options is the configuration snapshot a session was started with.
type Options struct {
	WebsiteCount        int     `json:"website_count"`
	UseRealImages       bool    `json:"use_real_images"`
	RandomIndustries    bool    `json:"random_industries"`
	MaxRetries          int     `json:"max_retries"`
	TimeoutPerWebsite   string  `json:"timeout_per_website"`
	Headless            bool    `json:"headless"`
	SaveScreenshots     bool    `json:"save_screenshots"`
	QualityThreshold    float64 `json:"quality_threshold"`
	BaseURL             string  `json:"base_url"`
	Seed                int64   `json:"seed"`
	ActivationThreshold float64 `json:"activation_threshold"`
}

// AttemptSummary is the per-website line kept in the session record.
type AttemptSummary struct {
	Index        int     `json:"index"`
	WebsiteID    string  `json:"website_id"`
	Industry     string  `json:"industry"`
	Template     string  `json:"template"`
	BusinessName string  `json:"business_name"`
	OverallScore float64 `json:"overall_score"`
	Verdict      string  `json:"verdict"`
	Success      bool    `json:"success"`
	Commands     int     `json:"commands"`
	Failures     int     `json:"failures"`
	DurationMS   int64   `json:"duration_ms"`
	Error        string  `json:"error,omitempty"`
}

// Session is one run of TargetCount website attempts.
type Session struct {
	ID            string                 `json:"id"`
	TargetCount   int                    `json:"target_count"`
	CurrentIndex  int                    `json:"current_index"`
	Status        Status                 `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	StartedAt     time.Time              `json:"started_at,omitzero"`
	UpdatedAt     time.Time              `json:"updated_at"`
	CompletedAt   time.Time              `json:"completed_at,omitzero"`
	Config        Options                `json:"config"`
	Learnings     []string               `json:"learnings"`
	QualityScores []scoring.QualityScore `json:"quality_scores"`
	FailureLog    []engine.FailureEntry  `json:"failure_log"`
	Attempts      []AttemptSummary       `json:"attempts"`
	Error         string                 `json:"error,omitempty"`
}

// AverageScore is the mean overall score of the attempts so far.
func (s *Session) AverageScore() float64 {
	if len(s.QualityScores) == 0 {
		return 0
	}
	var sum float64
	for _, q := range s.QualityScores {
		sum += q.OverallScore
	}
	return sum / float64(len(s.QualityScores))
}
