package daemon

import (
	"errors"
	"os"
	"time"

	"github.com/lucasnoah/sitefactory/internal/fileutil"
)

// Status is the daemon's lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusError   Status = "error"
)

// Shutdown reasons.
const (
	ReasonCircuitOpen = "circuit_open"
	ReasonSignal      = "signal"
)

// HistoryEntry summarizes one session run by the daemon.
type HistoryEntry struct {
	SessionID    string    `json:"session_id,omitempty"`
	Status       string    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	Websites     int       `json:"websites"`
	AverageScore float64   `json:"average_score"`
	Error        string    `json:"error,omitempty"`
}

// State is persisted to state.json after every transition.
type State struct {
	Status            Status         `json:"status"`
	CurrentSessionID  string         `json:"current_session_id,omitempty"`
	ConsecutiveErrors int            `json:"consecutive_errors"`
	LastActivity      time.Time      `json:"last_activity,omitzero"`
	LastError         string         `json:"last_error,omitempty"`
	MemoryMB          uint64         `json:"memory_mb"`
	History           []HistoryEntry `json:"history"`
	StartedAt         time.Time      `json:"started_at,omitzero"`
	PID               int            `json:"pid,omitempty"`
	ShutdownReason    string         `json:"shutdown_reason,omitempty"`
}

// pushHistory appends e and evicts the oldest entries beyond limit.
func (s *State) pushHistory(e HistoryEntry, limit int) {
	s.History = append(s.History, e)
	if over := len(s.History) - limit; over > 0 {
		s.History = append([]HistoryEntry(nil), s.History[over:]...)
	}
}

// LoadState reads a persisted state. A missing file yields an idle state.
func LoadState(path string) (*State, error) {
	var s State
	err := fileutil.ReadJSON(path, &s)
	if errors.Is(err, os.ErrNotExist) {
		return &State{Status: StatusIdle}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
