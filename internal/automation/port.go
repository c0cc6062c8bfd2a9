// Package automation is the boundary between the execution engine and a
// browser backend. The engine enqueues intents on a Port; a Transport
// carries them out.
package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Operation names one kind of intent a transport understands.
type Operation string

const (
	OpNavigate        Operation = "navigate"
	OpClick           Operation = "click"
	OpType            Operation = "type"
	OpSelect          Operation = "select"
	OpSnapshot        Operation = "snapshot"
	OpScreenshot      Operation = "screenshot"
	OpEvaluate        Operation = "evaluate"
	OpWait            Operation = "wait"
	OpPressKey        Operation = "press_key"
	OpConsoleMessages Operation = "console_messages"
	OpNetworkRequests Operation = "network_requests"
	OpResize          Operation = "resize"
)

// Intent is one queued request to the automation backend.
type Intent struct {
	Operation Operation         `json:"operation"`
	Params    map[string]string `json:"params,omitempty"`
	QueuedAt  time.Time         `json:"queued_at"`
}

// Param returns a parameter value or "".
func (i Intent) Param(key string) string {
	return i.Params[key]
}

// FailureCode classifies a transport-reported failure.
type FailureCode string

const (
	CodeNone       FailureCode = ""
	CodeNotFound   FailureCode = "not_found"
	CodeNavigation FailureCode = "navigation"
)

// Result is what a transport reports for one intent.
type Result struct {
	OK     bool        `json:"ok"`
	Output string      `json:"output,omitempty"`
	Error  string      `json:"error,omitempty"`
	Code   FailureCode `json:"code,omitempty"`
}

// Transport executes intents. Implementations: ChromeTransport, NoopTransport, Recorder.
type Transport interface {
	Dispatch(ctx context.Context, in Intent) (Result, error)
}

var (
	ErrElementNotFound = errors.New("element not found")
	ErrNavigation      = errors.New("navigation failed")
	ErrOperation       = errors.New("operation failed")
)

// DispatchError wraps a failed intent with the sentinel matching its code.
type DispatchError struct {
	Operation Operation
	Message   string
	kind      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Operation, e.kind, e.Message)
}

func (e *DispatchError) Unwrap() error {
	return e.kind
}

// Port records every intent it forwards and turns failed results into errors.
type Port struct {
	transport Transport

	mu      sync.Mutex
	history []Intent
}

// NewPort creates a Port over a transport.
func NewPort(t Transport) *Port {
	return &Port{transport: t}
}

// Do enqueues an intent and waits for the transport's answer.
func (p *Port) Do(ctx context.Context, op Operation, params map[string]string) (string, error) {
	in := Intent{Operation: op, Params: params, QueuedAt: time.Now()}
	p.mu.Lock()
	p.history = append(p.history, in)
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := p.transport.Dispatch(ctx, in)
	if err != nil {
		return "", fmt.Errorf("dispatch %s: %w", op, err)
	}
	if !res.OK {
		kind := ErrOperation
		switch res.Code {
		case CodeNotFound:
			kind = ErrElementNotFound
		case CodeNavigation:
			kind = ErrNavigation
		}
		return res.Output, &DispatchError{Operation: op, Message: res.Error, kind: kind}
	}
	return res.Output, nil
}

// History returns a copy of every intent forwarded so far.
func (p *Port) History() []Intent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Intent, len(p.history))
	copy(out, p.history)
	return out
}

// ResetHistory drops recorded intents.
func (p *Port) ResetHistory() {
	p.mu.Lock()
	p.history = nil
	p.mu.Unlock()
}
