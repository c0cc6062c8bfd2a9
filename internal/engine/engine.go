// Package engine executes generated command lists against the automation
// port, one command at a time, with per-command retry and failure logging.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/sitefactory/internal/automation"
	"github.com/lucasnoah/sitefactory/internal/command"
)

// Options tunes execution.
type Options struct {
	MaxRetries      int
	CommandDelay    time.Duration // applied after every command
	RetryDelay      time.Duration // applied before every retry
	SaveScreenshots bool
	SelectorAttr    string // used to build DOM queries for evaluate-based checks
}

// CommandExecutionError wraps a handler failure with the command it came from.
type CommandExecutionError struct {
	CommandID string
	Step      string
	Attempt   int
	Err       error
}

func (e *CommandExecutionError) Error() string {
	return fmt.Sprintf("command %s (%s) attempt %d: %v", e.CommandID, e.Step, e.Attempt, e.Err)
}

func (e *CommandExecutionError) Unwrap() error {
	return e.Err
}

// Engine runs command lists strictly sequentially.
type Engine struct {
	port     *automation.Port
	opts     Options
	handlers map[command.Kind]handler
	progress io.Writer
	onLog    func(ExecutionLogEntry)
	now      func() time.Time
}

// New creates an Engine over an automation port.
func New(port *automation.Port, opts Options) *Engine {
	if opts.SelectorAttr == "" {
		opts.SelectorAttr = "data-testid"
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Engine{
		port:     port,
		opts:     opts,
		handlers: handlerTable(),
		now:      time.Now,
	}
}

// SetProgress sets a writer for live progress output.
func (e *Engine) SetProgress(w io.Writer) {
	e.progress = w
}

// SetLogSink registers a callback invoked for every execution log entry as it happens.
func (e *Engine) SetLogSink(fn func(ExecutionLogEntry)) {
	e.onLog = fn
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.progress != nil {
		fmt.Fprintf(e.progress, "  → "+format+"\n", args...)
	}
}

// Execute runs cmds in order for one website attempt. A failed critical
// command, or an expired ctx, marks every remaining command skipped.
func (e *Engine) Execute(ctx context.Context, sessionID, websiteID string, cmds []command.Command) *Result {
	start := e.now()
	res := &Result{WebsiteID: websiteID, Total: len(cmds)}
	e.logf("website %s: executing %d commands", websiteID, len(cmds))

	abort := ""
	for _, c := range cmds {
		if abort == "" && ctx.Err() != nil {
			abort = "attempt deadline: " + ctx.Err().Error()
		}
		if abort != "" {
			res.Skipped++
			res.Results = append(res.Results, CommandResult{CommandID: c.ID, Step: StepFor(c), Status: StatusSkipped, Error: abort})
			e.appendLog(res, ExecutionLogEntry{
				SessionID: sessionID, WebsiteID: websiteID, CommandID: c.ID,
				Action: string(c.Action), Status: StatusSkipped, Error: abort, Timestamp: e.now(),
			})
			continue
		}

		cr, failure := e.run(ctx, sessionID, websiteID, c, res)
		res.Results = append(res.Results, cr)
		switch cr.Status {
		case StatusSuccess:
			res.Success++
		case StatusFailed:
			res.Failed++
		}
		if failure != nil {
			if failure.Resolved {
				res.Recovered = append(res.Recovered, *failure)
			} else {
				res.Failures = append(res.Failures, *failure)
			}
		}
		if cr.Status == StatusFailed && c.Critical {
			abort = fmt.Sprintf("critical command %s failed", c.ID)
			e.logf("%s; skipping remaining commands", abort)
		}

		_ = sleepCtx(ctx, e.opts.CommandDelay)
	}

	res.Duration = e.now().Sub(start)
	e.logf("website %s: %d ok, %d failed, %d skipped (%s)", websiteID, res.Success, res.Failed, res.Skipped, res.Duration.Round(time.Millisecond))
	return res
}

// run executes one command with its retry budget. Only the last attempt
// decides the command's final status.
func (e *Engine) run(ctx context.Context, sessionID, websiteID string, c command.Command, res *Result) (CommandResult, *FailureEntry) {
	start := e.now()
	cr := CommandResult{CommandID: c.ID, Step: StepFor(c)}

	kind, err := command.Resolve(c)
	if err != nil {
		cr.Status = StatusFailed
		cr.Attempts = 1
		cr.Error = err.Error()
		cr.ErrorType = ErrorUnsupported
		e.appendLog(res, e.entry(sessionID, websiteID, c, StatusFailed, 1, 0, err))
		e.logf("%s unsupported: %s", c.ID, kind)
		return cr, e.failure(websiteID, c, err, 0, false)
	}
	h, ok := e.handlers[kind]
	if !ok {
		err := &command.UnsupportedError{CommandID: c.ID, Category: c.Category, Action: c.Action}
		cr.Status, cr.Attempts, cr.Error, cr.ErrorType = StatusFailed, 1, err.Error(), ErrorUnsupported
		return cr, e.failure(websiteID, c, err, 0, false)
	}

	budget := min(c.Retries, e.opts.MaxRetries)
	if budget < 0 {
		budget = 0
	}

	var lastErr, lastFailure error
	for attempt := 1; attempt <= budget+1; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, e.opts.RetryDelay); err != nil {
				lastErr = err
				break
			}
			e.logf("%s retry %d/%d", c.ID, attempt-1, budget)
		}
		cr.Attempts = attempt

		attemptStart := e.now()
		out, err := e.attempt(ctx, h, c, websiteID, res)
		elapsed := e.now().Sub(attemptStart)
		if err == nil {
			cr.Status = StatusSuccess
			cr.Output = out
			e.appendLog(res, e.entry(sessionID, websiteID, c, StatusSuccess, attempt, elapsed, nil))
			lastErr = nil
			break
		}
		lastErr = &CommandExecutionError{CommandID: c.ID, Step: cr.Step, Attempt: attempt, Err: err}
		lastFailure = lastErr
		e.appendLog(res, e.entry(sessionID, websiteID, c, StatusFailed, attempt, elapsed, err))
		if ctx.Err() != nil {
			break
		}
	}
	cr.Duration = e.now().Sub(start)

	if lastErr == nil {
		if cr.Attempts > 1 {
			return cr, e.failure(websiteID, c, lastFailure, cr.Attempts-1, true)
		}
		return cr, nil
	}
	cr.Status = StatusFailed
	cr.Error = lastErr.Error()
	cr.ErrorType = classify(lastErr)
	return cr, e.failure(websiteID, c, lastErr, cr.Attempts-1, false)
}

func (e *Engine) attempt(ctx context.Context, h handler, c command.Command, websiteID string, res *Result) (string, error) {
	cctx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	return h(cctx, &call{engine: e, cmd: c, websiteID: websiteID, result: res})
}

func (e *Engine) entry(sessionID, websiteID string, c command.Command, st Status, attempt int, d time.Duration, err error) ExecutionLogEntry {
	le := ExecutionLogEntry{
		SessionID:  sessionID,
		WebsiteID:  websiteID,
		CommandID:  c.ID,
		Action:     string(c.Action),
		Status:     st,
		Attempt:    attempt,
		DurationMS: d.Milliseconds(),
		Timestamp:  e.now(),
	}
	if err != nil {
		le.Error = err.Error()
	}
	return le
}

func (e *Engine) appendLog(res *Result, le ExecutionLogEntry) {
	res.Log = append(res.Log, le)
	if e.onLog != nil {
		e.onLog(le)
	}
}

// failure builds the FailureEntry for a command. A resolved entry carries the
// last error that was recovered from.
func (e *Engine) failure(websiteID string, c command.Command, err error, recoveries int, resolved bool) *FailureEntry {
	f := &FailureEntry{
		ID:               "fail-" + uuid.NewString()[:8],
		WebsiteID:        websiteID,
		CommandID:        c.ID,
		Step:             StepFor(c),
		RecoveryAttempts: recoveries,
		Resolved:         resolved,
		Timestamp:        e.now(),
	}
	f.ErrorType = classify(err)
	f.ErrorMessage = err.Error()
	f.Context = contextFor(f.ErrorType, c)
	return f
}

func classify(err error) ErrorType {
	var unsupported *command.UnsupportedError
	switch {
	case errors.As(err, &unsupported):
		return ErrorUnsupported
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTimeout
	case errors.Is(err, automation.ErrElementNotFound):
		return ErrorSelector
	case errors.Is(err, automation.ErrNavigation):
		return ErrorNavigation
	default:
		return ErrorExecution
	}
}

func contextFor(t ErrorType, c command.Command) FailureContext {
	switch t {
	case ErrorTimeout:
		return TimeoutContext{Timeout: c.Timeout}
	case ErrorSelector:
		return SelectorContext{Target: c.Target}
	case ErrorNavigation:
		return NavigationContext{URL: c.Value}
	case ErrorUnsupported:
		return UnsupportedContext{Category: c.Category, Action: c.Action}
	default:
		return OtherContext{Fields: map[string]string{"target": c.Target, "value": c.Value}}
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
