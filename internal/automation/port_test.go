package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/chromedp/chromedp/kb"
)

func TestPort_RecordsIntents(t *testing.T) {
	rec := NewRecorder()
	rec.Outputs[OpSnapshot] = "<html></html>"
	p := NewPort(rec)

	ctx := context.Background()
	if _, err := p.Do(ctx, OpNavigate, map[string]string{"url": "http://x"}); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	out, err := p.Do(ctx, OpSnapshot, nil)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if out != "<html></html>" {
		t.Errorf("snapshot output = %q", out)
	}

	hist := p.History()
	if len(hist) != 2 {
		t.Fatalf("history len = %d, want 2", len(hist))
	}
	if hist[0].Operation != OpNavigate || hist[0].Param("url") != "http://x" {
		t.Errorf("first intent = %+v", hist[0])
	}
	if rec.Count(OpNavigate) != 1 {
		t.Errorf("recorder navigate count = %d", rec.Count(OpNavigate))
	}

	p.ResetHistory()
	if len(p.History()) != 0 {
		t.Error("history not cleared")
	}
}

func TestPort_FailureCodesMapToSentinels(t *testing.T) {
	tests := []struct {
		code FailureCode
		want error
	}{
		{CodeNotFound, ErrElementNotFound},
		{CodeNavigation, ErrNavigation},
		{CodeNone, ErrOperation},
	}
	for _, tt := range tests {
		rec := NewRecorder()
		rec.Queue(OpClick, Result{Error: "boom", Code: tt.code})
		p := NewPort(rec)
		_, err := p.Do(context.Background(), OpClick, map[string]string{"ref": "x"})
		if !errors.Is(err, tt.want) {
			t.Errorf("code %q: err = %v, want %v", tt.code, err, tt.want)
		}
		var de *DispatchError
		if !errors.As(err, &de) || de.Operation != OpClick {
			t.Errorf("code %q: expected *DispatchError for click, got %T", tt.code, err)
		}
	}
}

func TestPort_CancelledContext(t *testing.T) {
	rec := NewRecorder()
	p := NewPort(rec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Do(ctx, OpClick, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(rec.Intents()) != 0 {
		t.Error("transport should not see intents on a cancelled context")
	}
}

func TestRecorder_QueueThenHandler(t *testing.T) {
	rec := NewRecorder()
	rec.Queue(OpClick, Result{Error: "first"})
	calls := 0
	rec.Handler = func(in Intent) (Result, error) {
		calls++
		return Result{OK: true, Output: "handled"}, nil
	}

	r1, _ := rec.Dispatch(context.Background(), Intent{Operation: OpClick})
	r2, _ := rec.Dispatch(context.Background(), Intent{Operation: OpClick})
	if r1.OK || r1.Error != "first" {
		t.Errorf("first result = %+v, want queued failure", r1)
	}
	if !r2.OK || r2.Output != "handled" || calls != 1 {
		t.Errorf("second result = %+v calls=%d, want handler result", r2, calls)
	}
}

func TestNoopTransport(t *testing.T) {
	n := NewNoopTransport()
	res, err := n.Dispatch(context.Background(), Intent{Operation: OpSnapshot})
	if err != nil || !res.OK || res.Output == "" {
		t.Fatalf("snapshot = %+v, %v", res, err)
	}
	res, _ = n.Dispatch(context.Background(), Intent{Operation: OpConsoleMessages})
	if res.Output != "[]" {
		t.Errorf("console output = %q, want []", res.Output)
	}
}

func TestKeyFor(t *testing.T) {
	if keyFor("Tab") != kb.Tab {
		t.Errorf("Tab = %q", keyFor("Tab"))
	}
	if keyFor("a") != "a" {
		t.Errorf("a = %q", keyFor("a"))
	}
}
