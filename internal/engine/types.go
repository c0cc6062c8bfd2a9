package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lucasnoah/sitefactory/internal/command"
)

// Status is the final state of one command.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ErrorType classifies a command failure.
type ErrorType string

const (
	ErrorTimeout     ErrorType = "timeout"
	ErrorSelector    ErrorType = "selector"
	ErrorNavigation  ErrorType = "navigation"
	ErrorUnsupported ErrorType = "unsupported"
	ErrorExecution   ErrorType = "execution"
)

// FailureContext is the typed diagnostic attached to a FailureEntry.
// Variants: TimeoutContext, SelectorContext, NavigationContext,
// UnsupportedContext, OtherContext.
type FailureContext interface {
	ContextKind() string
}

type TimeoutContext struct {
	Timeout time.Duration
}

type SelectorContext struct {
	Target string
}

type NavigationContext struct {
	URL string
}

type UnsupportedContext struct {
	Category command.Category
	Action   command.Action
}

// OtherContext carries free-form diagnostics for failures outside the typed kinds.
type OtherContext struct {
	Fields map[string]string
}

func (TimeoutContext) ContextKind() string     { return "timeout" }
func (SelectorContext) ContextKind() string    { return "selector" }
func (NavigationContext) ContextKind() string  { return "navigation" }
func (UnsupportedContext) ContextKind() string { return "unsupported" }
func (OtherContext) ContextKind() string       { return "other" }

// FailureEntry records one command that failed at least once.
type FailureEntry struct {
	ID               string         `json:"id"`
	WebsiteID        string         `json:"website_id"`
	CommandID        string         `json:"command_id"`
	Step             string         `json:"step"` // "<category>:<action>"
	ErrorType        ErrorType      `json:"error_type"`
	ErrorMessage     string         `json:"error_message"`
	Context          FailureContext `json:"-"`
	RecoveryAttempts int            `json:"recovery_attempts"`
	Resolved         bool           `json:"resolved"`
	Timestamp        time.Time      `json:"timestamp"`
}

// contextDoc is the wire form of a FailureContext, discriminated by kind.
type contextDoc struct {
	Kind     string            `json:"kind"`
	Timeout  string            `json:"timeout,omitempty"`
	Target   string            `json:"target,omitempty"`
	URL      string            `json:"url,omitempty"`
	Category string            `json:"category,omitempty"`
	Action   string            `json:"action,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

type failureEntryAlias FailureEntry

type failureEntryDoc struct {
	failureEntryAlias
	Context *contextDoc `json:"context,omitempty"`
}

// MarshalJSON writes the context with a kind discriminator.
func (f FailureEntry) MarshalJSON() ([]byte, error) {
	doc := failureEntryDoc{failureEntryAlias: failureEntryAlias(f)}
	switch c := f.Context.(type) {
	case TimeoutContext:
		doc.Context = &contextDoc{Kind: c.ContextKind(), Timeout: c.Timeout.String()}
	case SelectorContext:
		doc.Context = &contextDoc{Kind: c.ContextKind(), Target: c.Target}
	case NavigationContext:
		doc.Context = &contextDoc{Kind: c.ContextKind(), URL: c.URL}
	case UnsupportedContext:
		doc.Context = &contextDoc{Kind: c.ContextKind(), Category: string(c.Category), Action: string(c.Action)}
	case OtherContext:
		doc.Context = &contextDoc{Kind: c.ContextKind(), Fields: c.Fields}
	case nil:
	default:
		return nil, fmt.Errorf("unknown failure context %T", c)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON restores the typed context. Unknown kinds become OtherContext.
func (f *FailureEntry) UnmarshalJSON(data []byte) error {
	var doc failureEntryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*f = FailureEntry(doc.failureEntryAlias)
	if doc.Context == nil {
		return nil
	}
	c := doc.Context
	switch c.Kind {
	case "timeout":
		d, _ := time.ParseDuration(c.Timeout)
		f.Context = TimeoutContext{Timeout: d}
	case "selector":
		f.Context = SelectorContext{Target: c.Target}
	case "navigation":
		f.Context = NavigationContext{URL: c.URL}
	case "unsupported":
		f.Context = UnsupportedContext{Category: command.Category(c.Category), Action: command.Action(c.Action)}
	default:
		f.Context = OtherContext{Fields: c.Fields}
	}
	return nil
}

// Kind recovers the command kind from Step.
func (f FailureEntry) Kind() command.Kind {
	cat, action, ok := strings.Cut(f.Step, ":")
	if !ok {
		return command.Kind{Action: command.Action(f.Step)}
	}
	return command.Kind{Category: command.Category(cat), Action: command.Action(action)}
}

// StepFor formats the step label of a command.
func StepFor(c command.Command) string {
	return fmt.Sprintf("%s:%s", c.Category, c.Action)
}

// ExecutionLogEntry is one append-only line of the execution log, written per attempt.
type ExecutionLogEntry struct {
	SessionID  string    `json:"session_id"`
	WebsiteID  string    `json:"website_id"`
	CommandID  string    `json:"command_id"`
	Action     string    `json:"action"`
	Status     Status    `json:"status"`
	Attempt    int       `json:"attempt"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// CommandResult is the final outcome of one command.
type CommandResult struct {
	CommandID string        `json:"command_id"`
	Step      string        `json:"step"`
	Status    Status        `json:"status"`
	Attempts  int           `json:"attempts"`
	Duration  time.Duration `json:"duration"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorType ErrorType     `json:"error_type,omitempty"`
}

// Result aggregates one execution of a command list.
type Result struct {
	WebsiteID   string              `json:"website_id"`
	Results     []CommandResult     `json:"results"`
	Total       int                 `json:"total"`
	Success     int                 `json:"success"`
	Failed      int                 `json:"failed"`
	Skipped     int                 `json:"skipped"`
	Duration    time.Duration       `json:"duration"`
	Failures    []FailureEntry      `json:"failures"`  // unresolved
	Recovered   []FailureEntry      `json:"recovered"` // failed then succeeded on retry
	Screenshots []string            `json:"screenshots,omitempty"`
	Snapshots   []string            `json:"-"`
	Log         []ExecutionLogEntry `json:"-"`
}

// SuccessRate is Success/Total, or 0 for an empty run.
func (r *Result) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Success) / float64(r.Total)
}

// AllFailures returns unresolved and recovered entries together.
func (r *Result) AllFailures() []FailureEntry {
	out := make([]FailureEntry, 0, len(r.Failures)+len(r.Recovered))
	out = append(out, r.Failures...)
	return append(out, r.Recovered...)
}
