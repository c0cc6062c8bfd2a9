package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lucasnoah/sitefactory/internal/daemon"
	"github.com/lucasnoah/sitefactory/internal/report"
	"github.com/lucasnoah/sitefactory/internal/session"
)

func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	resetFlags(rootCmd)
	return buf.String(), err
}

// resetFlags puts every flag in the command tree back to its default so one
// invocation (including --help) does not leak into the next.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// testHome points the CLI at an isolated state root with the browserless
// backend and no pacing delays.
func testHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("SITEFACTORY_HOME", home)
	t.Setenv("SITEFACTORY_AUTOMATION_BACKEND", "noop")
	t.Setenv("SITEFACTORY_COMMAND_DELAY", "0s")
	t.Setenv("SITEFACTORY_RETRY_DELAY", "0s")
	t.Chdir(t.TempDir())
	configFile = ""
	return home
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{
		"start", "stop", "status", "run", "history", "trends",
		"cleanup", "logs", "learnings", "analytics", "config", "db", "version",
	}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestSubcommandHelp(t *testing.T) {
	groups := map[string][]string{
		"learnings": {"list", "suggest", "export", "import", "prune"},
		"analytics": {"failures", "industries", "verdicts", "steps"},
		"config":    {"show", "validate", "templates"},
		"db":        {"migrate", "reset"},
	}
	for group, subs := range groups {
		for _, sub := range subs {
			out, err := executeCommand(group, sub, "--help")
			if err != nil {
				t.Errorf("%s %s --help failed: %v", group, sub, err)
			}
			if out == "" {
				t.Errorf("%s %s --help produced no output", group, sub)
			}
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := executeCommand("nonexistent")
	if err == nil {
		t.Error("expected error for unknown command, got nil")
	}
}

func TestRunCommand_RejectsBadCount(t *testing.T) {
	for _, arg := range []string{"zero", "0", "-3"} {
		_, err := executeCommand("run", "--", arg)
		if err == nil || !strings.Contains(err.Error(), "positive integer") {
			t.Errorf("run %s: err = %v", arg, err)
		}
	}
}

func TestRunCommand_ThenHistoryAndTrends(t *testing.T) {
	home := testHome(t)

	out, err := executeCommand("run", "2", "--format", "json", "--seed", "7")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	var rep report.SessionReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("run output is not a report: %v\n%s", err, out)
	}
	if rep.TotalWebsites != 2 || rep.Status != "completed" {
		t.Errorf("report = %d websites, status %q", rep.TotalWebsites, rep.Status)
	}
	if _, err := os.Stat(filepath.Join(home, learningsFile)); err != nil {
		t.Errorf("learnings not exported: %v", err)
	}

	out, err = executeCommand("history", "--format", "text", "--status", "", "--limit", "20")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, rep.SessionID) || !strings.Contains(out, "completed") {
		t.Errorf("history output:\n%s", out)
	}

	out, err = executeCommand("trends", "--format", "text", "--last", "5")
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	if !strings.Contains(out, string(report.InsufficientData)) {
		t.Errorf("trends output:\n%s", out)
	}

	out, err = executeCommand("analytics", "verdicts", "--format", "json", "--since", "")
	if err != nil {
		t.Fatalf("analytics verdicts: %v", err)
	}
	var verdicts []struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &verdicts); err != nil {
		t.Fatalf("verdicts output: %v\n%s", err, out)
	}
	total := 0
	for _, v := range verdicts {
		total += v.Count
	}
	if total != 2 {
		t.Errorf("verdict total = %d, want 2", total)
	}
}

func TestStatusCommand_NoDaemon(t *testing.T) {
	testHome(t)
	out, err := executeCommand("status", "--format", "text")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "not running") || !strings.Contains(out, "idle") {
		t.Errorf("status output:\n%s", out)
	}
}

func TestStopCommand_NoDaemon(t *testing.T) {
	testHome(t)
	_, err := executeCommand("stop")
	if err == nil || !strings.Contains(err.Error(), daemon.ErrNotRunning.Error()) {
		t.Errorf("stop err = %v, want not running", err)
	}
}

func TestLearningsCommands_EmptyStore(t *testing.T) {
	home := testHome(t)

	out, err := executeCommand("learnings", "list", "--format", "text", "--type", "", "--limit", "50")
	if err != nil {
		t.Fatalf("learnings list: %v", err)
	}
	if !strings.Contains(out, "No learnings stored.") {
		t.Errorf("list output:\n%s", out)
	}

	dst := filepath.Join(home, "out.json")
	if _, err := executeCommand("learnings", "export", dst); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("export file missing: %v", err)
	}
}

func TestConfigTemplates_Installs(t *testing.T) {
	home := testHome(t)
	if _, err := executeCommand("config", "templates"); err != nil {
		t.Fatalf("config templates: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(home, templatesDir))
	if err != nil || len(entries) == 0 {
		t.Errorf("templates dir = %v, %v", entries, err)
	}
}

func TestDBReset_RequiresConfirmation(t *testing.T) {
	testHome(t)
	if _, err := executeCommand("db", "reset", "--yes=false"); err == nil {
		t.Error("reset without --yes succeeded")
	}
}

func TestHelpDoesNotLeakIntoLaterRuns(t *testing.T) {
	testHome(t)
	if _, err := executeCommand("db", "reset", "--help"); err != nil {
		t.Fatalf("db reset --help: %v", err)
	}
	if _, err := executeCommand("db", "reset"); err == nil {
		t.Error("db reset ran as help after a previous --help")
	}
}

func TestRunCommand_RefusesWhileDaemonAlive(t *testing.T) {
	home := testHome(t)
	store := session.NewStore(home)
	live, err := store.Create(session.Options{WebsiteCount: 3})
	if err != nil {
		t.Fatal(err)
	}
	live.Status = session.StatusRunning
	if err := store.Save(live); err != nil {
		t.Fatal(err)
	}
	if err := daemon.WritePIDFile(filepath.Join(daemon.Dir(home), daemon.PIDFile), os.Getppid()); err != nil {
		t.Fatal(err)
	}

	_, err = executeCommand("run", "1")
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("run err = %v, want ErrAlreadyRunning", err)
	}
	cp, err := store.LoadCheckpoint()
	if err != nil || cp == nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if cp.ID != live.ID || cp.Status != session.StatusRunning {
		t.Errorf("checkpoint = %s %s, want live session still running", cp.ID, cp.Status)
	}
}

func TestCleanupCommand_KeepsPausedCheckpoint(t *testing.T) {
	home := testHome(t)
	store := session.NewStore(home)

	var ids []string
	for i := 0; i < 2; i++ {
		s, err := store.Create(session.Options{WebsiteCount: 1})
		if err != nil {
			t.Fatal(err)
		}
		s.Status = session.StatusCompleted
		if err := store.Save(s); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, s.ID)
	}
	paused, err := store.Create(session.Options{WebsiteCount: 5})
	if err != nil {
		t.Fatal(err)
	}
	paused.Status = session.StatusPaused
	if err := store.Save(paused); err != nil {
		t.Fatal(err)
	}

	// Paused is the oldest; keep=1 keeps only the newest completed one.
	now := time.Now()
	for i, id := range []string{paused.ID, ids[0], ids[1]} {
		ts := now.Add(time.Duration(i-3) * time.Hour)
		if err := os.Chtimes(store.SessionDir(id), ts, ts); err != nil {
			t.Fatal(err)
		}
	}

	out, err := executeCommand("cleanup", "--keep", "1", "--format", "json")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	var removed []string
	if err := json.Unmarshal([]byte(out), &removed); err != nil {
		t.Fatalf("cleanup output: %v\n%s", err, out)
	}
	if len(removed) != 1 || removed[0] != ids[0] {
		t.Errorf("removed = %v, want [%s]", removed, ids[0])
	}
	if _, err := os.Stat(store.SessionDir(paused.ID)); err != nil {
		t.Errorf("paused session deleted: %v", err)
	}
}
