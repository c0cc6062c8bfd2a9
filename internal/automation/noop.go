package automation

import (
	"context"
	"fmt"
)

// NoopTransport accepts every intent without touching a browser. Snapshots
// return a minimal document so DOM heuristics have something to read, and
// evaluations answer with the caller's "expect" parameter.
type NoopTransport struct{}

// NewNoopTransport returns a NoopTransport.
func NewNoopTransport() *NoopTransport {
	return &NoopTransport{}
}

// Dispatch implements Transport.
func (n *NoopTransport) Dispatch(ctx context.Context, in Intent) (Result, error) {
	switch in.Operation {
	case OpSnapshot:
		return Result{OK: true, Output: noopDocument}, nil
	case OpConsoleMessages, OpNetworkRequests:
		return Result{OK: true, Output: "[]"}, nil
	case OpEvaluate:
		return Result{OK: true, Output: in.Param("expect")}, nil
	case OpScreenshot:
		return Result{OK: true, Output: fmt.Sprintf("noop://%s.png", in.Param("name"))}, nil
	default:
		return Result{OK: true}, nil
	}
}

const noopDocument = `<html><head><title>preview</title><meta name="description" content="preview"></head>` +
	`<body><h1>preview</h1><a href="#contact">contact</a></body></html>`
