package automation

import (
	"context"
	"sync"
)

// Recorder is a scriptable transport. Queued results for an operation are
// consumed first, then Handler (if set) decides, otherwise the intent succeeds
// with Outputs[op]. Evaluations without a scripted output echo "expect".
type Recorder struct {
	Handler func(Intent) (Result, error)
	Outputs map[Operation]string

	mu      sync.Mutex
	intents []Intent
	queued  map[Operation][]Result
}

// NewRecorder returns a Recorder where every intent succeeds.
func NewRecorder() *Recorder {
	return &Recorder{
		Outputs: make(map[Operation]string),
		queued:  make(map[Operation][]Result),
	}
}

// Queue scripts the next results for an operation, in order.
func (r *Recorder) Queue(op Operation, results ...Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued[op] = append(r.queued[op], results...)
}

// Dispatch implements Transport.
func (r *Recorder) Dispatch(ctx context.Context, in Intent) (Result, error) {
	r.mu.Lock()
	r.intents = append(r.intents, in)
	if q := r.queued[in.Operation]; len(q) > 0 {
		res := q[0]
		r.queued[in.Operation] = q[1:]
		r.mu.Unlock()
		return res, nil
	}
	handler := r.Handler
	out, scripted := r.Outputs[in.Operation]
	r.mu.Unlock()

	if !scripted && in.Operation == OpEvaluate {
		out = in.Param("expect")
	}

	if handler != nil {
		return handler(in)
	}
	return Result{OK: true, Output: out}, nil
}

// Intents returns every intent dispatched so far.
func (r *Recorder) Intents() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Intent, len(r.intents))
	copy(out, r.intents)
	return out
}

// Count returns how many intents of an operation were dispatched.
func (r *Recorder) Count(op Operation) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, in := range r.intents {
		if in.Operation == op {
			n++
		}
	}
	return n
}
