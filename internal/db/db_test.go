package db

import (
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMigrate(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tables := []string{"schema_version", "session_events", "attempt_runs", "command_log", "command_failures"}
	for _, table := range tables {
		var name string
		err := d.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	var version int
	if err := d.conn.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("query schema_version: %v", err)
	}
	if version != 1 {
		t.Errorf("expected schema version 1, got %d", version)
	}

	if err := d.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestReset(t *testing.T) {
	d := testDB(t)

	if err := d.LogSessionEvent("s1", "started", ""); err != nil {
		t.Fatalf("log event: %v", err)
	}
	if err := d.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	events, err := d.ListSessionEvents("")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events after reset, got %d", len(events))
	}
}

func TestSessionEvents(t *testing.T) {
	d := testDB(t)

	for _, ev := range []string{"created", "started", "attempt", "completed"} {
		if err := d.LogSessionEvent("s1", ev, "detail-"+ev); err != nil {
			t.Fatalf("log %s: %v", ev, err)
		}
	}
	if err := d.LogSessionEvent("s2", "started", ""); err != nil {
		t.Fatalf("log: %v", err)
	}

	events, err := d.ListSessionEvents("s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].Event != "created" || events[3].Event != "completed" {
		t.Errorf("order = %q ... %q", events[0].Event, events[3].Event)
	}
	if events[1].Detail != "detail-started" {
		t.Errorf("detail = %q", events[1].Detail)
	}

	all, _ := d.ListSessionEvents("")
	if len(all) != 5 {
		t.Errorf("expected 5 events total, got %d", len(all))
	}
}

func TestSessionEvents_RejectsUnknown(t *testing.T) {
	d := testDB(t)
	if err := d.LogSessionEvent("s1", "exploded", ""); err == nil {
		t.Error("expected CHECK constraint to reject unknown event")
	}
}

func TestAttempts(t *testing.T) {
	d := testDB(t)

	runs := []AttemptRun{
		{SessionID: "s1", WebsiteID: "w2", Index: 1, Industry: "bakery", Template: "modern", OverallScore: 4, Verdict: "OK", Commands: 60, Failed: 10, Error: "build failed"},
		{SessionID: "s1", WebsiteID: "w1", Index: 0, Industry: "dental", Template: "classic", OverallScore: 8.5, Verdict: "Excellent", Success: true, Commands: 55, DurationMs: 1200},
	}
	for _, r := range runs {
		if err := d.LogAttempt(r); err != nil {
			t.Fatalf("log attempt: %v", err)
		}
	}

	got, err := d.ListAttempts("s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(got))
	}
	if got[0].WebsiteID != "w1" || !got[0].Success || got[0].DurationMs != 1200 {
		t.Errorf("first attempt = %+v", got[0])
	}
	if got[1].Error != "build failed" || got[1].Success {
		t.Errorf("second attempt = %+v", got[1])
	}
}

func TestLogCommandsAndFailures(t *testing.T) {
	d := testDB(t)

	entries := []CommandLog{
		{SessionID: "s1", WebsiteID: "w1", CommandID: "cmd-0001", Action: "navigate", Status: "success", Attempt: 1},
		{SessionID: "s1", WebsiteID: "w1", CommandID: "cmd-0002", Action: "click", Status: "failed", Attempt: 1, Error: "not found"},
	}
	if err := d.LogCommands(entries); err != nil {
		t.Fatalf("log commands: %v", err)
	}
	if err := d.LogCommands(nil); err != nil {
		t.Fatalf("empty log commands: %v", err)
	}

	var n int
	if err := d.conn.QueryRow("SELECT COUNT(*) FROM command_log").Scan(&n); err != nil || n != 2 {
		t.Errorf("command_log rows = %d (%v)", n, err)
	}

	f := CommandFailure{FailureID: "fail-1", SessionID: "s1", WebsiteID: "w1", CommandID: "cmd-0002", Step: "interaction:click", ErrorType: "selector", Message: "not found", RecoveryAttempts: 1}
	if err := d.LogFailure(f); err != nil {
		t.Fatalf("log failure: %v", err)
	}
	var step string
	if err := d.conn.QueryRow("SELECT step FROM command_failures WHERE failure_id = 'fail-1'").Scan(&step); err != nil || step != "interaction:click" {
		t.Errorf("step = %q (%v)", step, err)
	}
}
