package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lucasnoah/sitefactory/internal/automation"
	"github.com/lucasnoah/sitefactory/internal/command"
)

func newTestEngine(t *testing.T, rec *automation.Recorder, maxRetries int) *Engine {
	t.Helper()
	return New(automation.NewPort(rec), Options{MaxRetries: maxRetries, SaveScreenshots: true})
}

func cmd(id string, cat command.Category, a command.Action, target string) command.Command {
	return command.Command{ID: id, Category: cat, Action: a, Target: target, Timeout: time.Second}
}

func TestHandlerTable_CoversEverySupportedKind(t *testing.T) {
	table := handlerTable()
	for _, k := range command.SupportedKinds() {
		if table[k] == nil {
			t.Errorf("no handler for %s", k)
		}
	}
	if len(table) != len(command.SupportedKinds()) {
		t.Errorf("handler table has %d entries, supported kinds %d", len(table), len(command.SupportedKinds()))
	}
}

func TestExecute_AllSucceed(t *testing.T) {
	rec := automation.NewRecorder()
	e := newTestEngine(t, rec, 3)
	cmds := []command.Command{
		cmd("c1", command.CategoryNavigation, command.ActionNavigate, ""),
		cmd("c2", command.CategoryFormFill, command.ActionType, "business-name"),
		cmd("c3", command.CategoryQualityCheck, command.ActionSnapshot, ""),
	}
	res := e.Execute(context.Background(), "s1", "w1", cmds)

	if res.Total != 3 || res.Success != 3 || res.Failed != 0 || res.Skipped != 0 {
		t.Fatalf("tally = %+v", res)
	}
	if len(res.Failures) != 0 {
		t.Errorf("failures = %v", res.Failures)
	}
	if len(res.Snapshots) != 1 {
		t.Errorf("snapshots = %d, want 1", len(res.Snapshots))
	}
	if rec.Count(automation.OpType) != 1 {
		t.Errorf("type intents = %d", rec.Count(automation.OpType))
	}
	if res.SuccessRate() != 1 {
		t.Errorf("success rate = %v", res.SuccessRate())
	}
}

func TestExecute_RetrySuccessCountsOnce(t *testing.T) {
	rec := automation.NewRecorder()
	rec.Queue(automation.OpClick, automation.Result{Error: "detached", Code: automation.CodeNotFound})
	e := newTestEngine(t, rec, 3)

	c := cmd("c1", command.CategoryFormFill, command.ActionClick, "next-step-btn")
	c.Retries = 2
	res := e.Execute(context.Background(), "s1", "w1", []command.Command{c})

	if res.Success != 1 || res.Failed != 0 {
		t.Fatalf("success=%d failed=%d, want 1/0", res.Success, res.Failed)
	}
	if len(res.Failures) != 0 {
		t.Errorf("unresolved failures = %d, want 0", len(res.Failures))
	}
	if len(res.Recovered) != 1 {
		t.Fatalf("recovered = %d, want 1", len(res.Recovered))
	}
	r := res.Recovered[0]
	if !r.Resolved || r.RecoveryAttempts != 1 || r.ErrorType != ErrorSelector {
		t.Errorf("recovered entry = %+v", r)
	}
	if res.Results[0].Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Results[0].Attempts)
	}
	if rec.Count(automation.OpClick) != 2 {
		t.Errorf("click dispatches = %d, want 2", rec.Count(automation.OpClick))
	}
}

func TestExecute_RetryBudgetCappedByMaxRetries(t *testing.T) {
	rec := automation.NewRecorder()
	rec.Handler = func(in automation.Intent) (automation.Result, error) {
		return automation.Result{Error: "nope"}, nil
	}
	e := newTestEngine(t, rec, 1)

	c := cmd("c1", command.CategoryFormFill, command.ActionClick, "x")
	c.Retries = 4
	res := e.Execute(context.Background(), "s1", "w1", []command.Command{c})

	if rec.Count(automation.OpClick) != 2 {
		t.Errorf("dispatches = %d, want 2 (1 + 1 retry)", rec.Count(automation.OpClick))
	}
	if res.Failed != 1 || len(res.Failures) != 1 {
		t.Fatalf("failed=%d failures=%d", res.Failed, len(res.Failures))
	}
	if res.Failures[0].RecoveryAttempts > 1 {
		t.Errorf("recovery attempts = %d exceeds max retries", res.Failures[0].RecoveryAttempts)
	}
}

func TestExecute_UnsupportedNotRetried(t *testing.T) {
	rec := automation.NewRecorder()
	e := newTestEngine(t, rec, 3)

	bad := command.Command{ID: "c1", Category: command.CategoryVerification, Action: "teleport", Retries: 3}
	ok := cmd("c2", command.CategoryNavigation, command.ActionWait, "")
	res := e.Execute(context.Background(), "s1", "w1", []command.Command{bad, ok})

	if res.Failed != 1 || res.Success != 1 {
		t.Fatalf("failed=%d success=%d", res.Failed, res.Success)
	}
	f := res.Failures[0]
	if f.ErrorType != ErrorUnsupported {
		t.Errorf("error type = %s", f.ErrorType)
	}
	uc, isUnsupported := f.Context.(UnsupportedContext)
	if !isUnsupported || uc.Action != "teleport" {
		t.Errorf("context = %#v", f.Context)
	}
	if res.Results[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Results[0].Attempts)
	}
	if len(rec.Intents()) != 1 {
		t.Errorf("intents = %d, only the wait should reach the transport", len(rec.Intents()))
	}
}

func TestExecute_CriticalFailureSkipsRest(t *testing.T) {
	rec := automation.NewRecorder()
	rec.Queue(automation.OpNavigate, automation.Result{Error: "refused", Code: automation.CodeNavigation})
	e := newTestEngine(t, rec, 0)

	nav := cmd("c1", command.CategoryNavigation, command.ActionNavigate, "")
	nav.Value = "http://localhost:1"
	nav.Critical = true
	cmds := []command.Command{
		nav,
		cmd("c2", command.CategoryFormFill, command.ActionType, "business-name"),
		cmd("c3", command.CategoryFormFill, command.ActionClick, "next-step-btn"),
	}
	res := e.Execute(context.Background(), "s1", "w1", cmds)

	if res.Failed != 1 || res.Skipped != 2 || res.Success != 0 {
		t.Fatalf("tally failed=%d skipped=%d success=%d", res.Failed, res.Skipped, res.Success)
	}
	f := res.Failures[0]
	if f.ErrorType != ErrorNavigation {
		t.Errorf("error type = %s", f.ErrorType)
	}
	if nc, ok := f.Context.(NavigationContext); !ok || nc.URL != "http://localhost:1" {
		t.Errorf("context = %#v", f.Context)
	}
	if res.Results[2].Status != StatusSkipped {
		t.Errorf("last status = %s", res.Results[2].Status)
	}
}

func TestExecute_TimeoutClassified(t *testing.T) {
	rec := automation.NewRecorder()
	rec.Handler = func(in automation.Intent) (automation.Result, error) {
		return automation.Result{}, context.DeadlineExceeded
	}
	e := newTestEngine(t, rec, 0)
	c := cmd("c1", command.CategoryVerification, command.ActionVerifyVisible, "section-hero")
	c.Timeout = 50 * time.Millisecond
	res := e.Execute(context.Background(), "s1", "w1", []command.Command{c})

	if len(res.Failures) != 1 {
		t.Fatalf("failures = %d", len(res.Failures))
	}
	f := res.Failures[0]
	if f.ErrorType != ErrorTimeout {
		t.Errorf("error type = %s, want timeout", f.ErrorType)
	}
	if tc, ok := f.Context.(TimeoutContext); !ok || tc.Timeout != 50*time.Millisecond {
		t.Errorf("context = %#v", f.Context)
	}
}

func TestExecute_VerifyTextMismatch(t *testing.T) {
	rec := automation.NewRecorder()
	rec.Outputs[automation.OpEvaluate] = "Welcome to Somewhere Else"
	e := newTestEngine(t, rec, 0)
	c := cmd("c1", command.CategoryVerification, command.ActionVerifyText, "hero-heading")
	c.Value = "Golden Bakery"
	res := e.Execute(context.Background(), "s1", "w1", []command.Command{c})
	if res.Failed != 1 {
		t.Fatalf("failed = %d, want 1", res.Failed)
	}
	if !strings.Contains(res.Failures[0].ErrorMessage, "Golden Bakery") {
		t.Errorf("message = %q", res.Failures[0].ErrorMessage)
	}
}

func TestExecute_ConsoleErrorsFailCheck(t *testing.T) {
	rec := automation.NewRecorder()
	rec.Outputs[automation.OpConsoleMessages] = `["Uncaught TypeError: x is undefined"]`
	e := newTestEngine(t, rec, 0)
	res := e.Execute(context.Background(), "s1", "w1", []command.Command{
		cmd("c1", command.CategoryQualityCheck, command.ActionConsoleErrors, ""),
		cmd("c2", command.CategoryQualityCheck, command.ActionNetworkErrors, ""),
	})
	if res.Failed != 1 || res.Success != 1 {
		t.Fatalf("failed=%d success=%d", res.Failed, res.Success)
	}
}

func TestExecute_ScreenshotsCollected(t *testing.T) {
	rec := automation.NewRecorder()
	rec.Outputs[automation.OpScreenshot] = "/tmp/shot.png"
	e := newTestEngine(t, rec, 0)
	res := e.Execute(context.Background(), "s1", "w1", []command.Command{
		cmd("c1", command.CategoryQualityCheck, command.ActionScreenshot, ""),
	})
	if diff := cmp.Diff([]string{"/tmp/shot.png"}, res.Screenshots); diff != "" {
		t.Errorf("screenshots (-want +got):\n%s", diff)
	}
	if got := rec.Intents()[0].Param("name"); got != "w1-c1" {
		t.Errorf("screenshot name = %q", got)
	}
}

func TestExecute_ScreenshotsDisabled(t *testing.T) {
	rec := automation.NewRecorder()
	e := New(automation.NewPort(rec), Options{})
	res := e.Execute(context.Background(), "s1", "w1", []command.Command{
		cmd("c1", command.CategoryQualityCheck, command.ActionScreenshot, ""),
	})
	if res.Success != 1 || len(rec.Intents()) != 0 {
		t.Errorf("success=%d intents=%d, want capture skipped", res.Success, len(rec.Intents()))
	}
}

func TestExecute_ExpiredContextSkipsAll(t *testing.T) {
	rec := automation.NewRecorder()
	e := newTestEngine(t, rec, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Execute(ctx, "s1", "w1", []command.Command{
		cmd("c1", command.CategoryNavigation, command.ActionWait, ""),
		cmd("c2", command.CategoryNavigation, command.ActionWait, ""),
	})
	if res.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", res.Skipped)
	}
}

func TestExecute_LogSinkAndProgress(t *testing.T) {
	rec := automation.NewRecorder()
	rec.Queue(automation.OpClick, automation.Result{Error: "flaky"})
	e := newTestEngine(t, rec, 1)
	var buf bytes.Buffer
	e.SetProgress(&buf)
	var entries []ExecutionLogEntry
	e.SetLogSink(func(le ExecutionLogEntry) { entries = append(entries, le) })

	c := cmd("c1", command.CategoryInteraction, command.ActionClick, "cta")
	c.Retries = 1
	e.Execute(context.Background(), "s1", "w1", []command.Command{c})

	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (failed then success)", len(entries))
	}
	if entries[0].Status != StatusFailed || entries[1].Status != StatusSuccess || entries[1].Attempt != 2 {
		t.Errorf("entries = %+v", entries)
	}
	if !strings.Contains(buf.String(), "retry 1/1") {
		t.Errorf("progress missing retry line:\n%s", buf.String())
	}
}

func TestResize_BadValue(t *testing.T) {
	rec := automation.NewRecorder()
	e := newTestEngine(t, rec, 0)
	c := cmd("c1", command.CategoryInteraction, command.ActionResize, "")
	c.Value = "wide"
	res := e.Execute(context.Background(), "s1", "w1", []command.Command{c})
	if res.Failed != 1 || len(rec.Intents()) != 0 {
		t.Errorf("failed=%d intents=%d", res.Failed, len(rec.Intents()))
	}
}

func TestFailureEntry_JSONRoundTrip(t *testing.T) {
	entries := []FailureEntry{
		{ID: "f1", Step: "form_fill:click", ErrorType: ErrorTimeout, Context: TimeoutContext{Timeout: 10 * time.Second}},
		{ID: "f2", Step: "form_fill:type", ErrorType: ErrorSelector, Context: SelectorContext{Target: "email-input"}},
		{ID: "f3", Step: "navigation:navigate", ErrorType: ErrorNavigation, Context: NavigationContext{URL: "http://x"}},
		{ID: "f4", Step: "verification:teleport", ErrorType: ErrorUnsupported, Context: UnsupportedContext{Category: "verification", Action: "teleport"}},
		{ID: "f5", Step: "interaction:hover", ErrorType: ErrorExecution, Context: OtherContext{Fields: map[string]string{"target": "cta"}}},
	}
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"selector"`) {
		t.Errorf("missing kind discriminator: %s", data)
	}
	var got []FailureEntry
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(entries, got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestFailureEntry_Kind(t *testing.T) {
	f := FailureEntry{Step: "form_fill:submit"}
	want := command.Kind{Category: command.CategoryFormFill, Action: command.ActionSubmit}
	if f.Kind() != want {
		t.Errorf("Kind() = %v", f.Kind())
	}
}

func TestCommandExecutionError_Unwrap(t *testing.T) {
	err := &CommandExecutionError{CommandID: "c1", Step: "form_fill:click", Attempt: 2, Err: automation.ErrElementNotFound}
	if !errors.Is(err, automation.ErrElementNotFound) {
		t.Error("expected errors.Is to see the wrapped sentinel")
	}
	if classify(err) != ErrorSelector {
		t.Errorf("classify = %s", classify(err))
	}
}
