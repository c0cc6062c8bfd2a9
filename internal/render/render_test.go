package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender_Variables(t *testing.T) {
	result, err := Render("Session {{session_id}} scored {{score}}", Vars{"session_id": "s1", "score": "7.5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Session s1 scored 7.5" {
		t.Errorf("got %q", result)
	}
}

func TestRender_MissingVariable(t *testing.T) {
	_, err := Render("Hello {{name}} {{other}}", Vars{})
	if err == nil {
		t.Fatal("expected error for missing variables")
	}
	if !strings.Contains(err.Error(), "name") || !strings.Contains(err.Error(), "other") {
		t.Errorf("error should name both variables: %v", err)
	}
}

func TestRender_ConditionalBlock(t *testing.T) {
	tmpl := "Start.{{#if note}} Note: {{note}}.{{/if}} End."

	result, err := Render(tmpl, Vars{"note": "slow"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Start. Note: slow. End." {
		t.Errorf("got %q", result)
	}

	result, err = Render(tmpl, Vars{"note": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Start. End." {
		t.Errorf("empty var should drop the block, got %q", result)
	}
}

func TestRender_NestedConditionals(t *testing.T) {
	tmpl := "START{{#if a}}outer {{#if b}}inner{{/if}} end{{/if}}FINISH"

	tests := []struct {
		name string
		vars Vars
		want string
	}{
		{"both", Vars{"a": "y", "b": "y"}, "STARTouter inner endFINISH"},
		{"outer only", Vars{"a": "y"}, "STARTouter  endFINISH"},
		{"neither", Vars{}, "STARTFINISH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tmpl, tt.vars)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_ValuesNotReexpanded(t *testing.T) {
	result, err := Render("{{a}} and {{b}}", Vars{"a": "{{b}}", "b": "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "{{b}} and hello" {
		t.Errorf("got %q", result)
	}
}

func TestRender_UnbalancedBlocks(t *testing.T) {
	if _, err := Render("START{{#if x}}body", Vars{"x": "y"}); err == nil || !strings.Contains(err.Error(), "unclosed") {
		t.Errorf("unclosed block: err = %v", err)
	}
	if _, err := Render("body{{/if}}", Vars{}); err == nil || !strings.Contains(err.Error(), "dangling") {
		t.Errorf("dangling close: err = %v", err)
	}
}

func TestRender_BuiltinReport(t *testing.T) {
	vars := Vars{
		"session_id":           "sess-1",
		"status":               "completed",
		"started_at":           "2026-01-01T00:00:00Z",
		"duration":             "1m0s",
		"websites_tested":      "2",
		"websites_succeeded":   "2",
		"websites_failed":      "0",
		"average_score":        "8.0",
		"best_score":           "9.0",
		"worst_score":          "7.0",
		"command_success_rate": "100%",
		"learnings_generated":  "3",
		"improvement":          "",
		"websites":             "- site-1",
		"top_learnings":        "",
		"recommendations":      "- keep going",
		"insights":             "",
	}
	out, err := Render(reportTemplate, vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "# Session sess-1") || !strings.Contains(out, "- keep going") {
		t.Errorf("rendered report missing content:\n%s", out)
	}
	if strings.Contains(out, "Top learnings") || strings.Contains(out, "Change from previous") {
		t.Errorf("empty sections should be omitted:\n%s", out)
	}
	if !strings.Contains(out, "No earlier session report") {
		t.Errorf("first-session note missing:\n%s", out)
	}

	vars["improvement"] = "+12.5%"
	out, err = Render(reportTemplate, vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Change from previous session: +12.5%") || strings.Contains(out, "No earlier session report") {
		t.Errorf("improvement sections wrong:\n%s", out)
	}
}

func TestRender_UnlessSection(t *testing.T) {
	tmpl := "{{#unless failures}}clean run{{/unless}}{{#if failures}}{{failures}} failed{{/if}}"
	tests := []struct {
		vars Vars
		want string
	}{
		{Vars{}, "clean run"},
		{Vars{"failures": ""}, "clean run"},
		{Vars{"failures": "3"}, "3 failed"},
	}
	for _, tt := range tests {
		got, err := Render(tmpl, tt.vars)
		if err != nil {
			t.Fatalf("Render(%v): %v", tt.vars, err)
		}
		if got != tt.want {
			t.Errorf("Render(%v) = %q, want %q", tt.vars, got, tt.want)
		}
	}
}

func TestRender_MismatchedClose(t *testing.T) {
	_, err := Render("{{#if a}}x{{/unless}}", Vars{"a": "y"})
	if err == nil || !strings.Contains(err.Error(), "closes {{#if a}}") {
		t.Errorf("err = %v, want mismatched close", err)
	}
}

func TestRender_FieldsInDroppedSectionNotRequired(t *testing.T) {
	got, err := Render("a{{#if extra}}{{undefined_field}}{{/if}}b", Vars{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ab" {
		t.Errorf("got %q", got)
	}
}

func TestLoad_OverrideAndFallback(t *testing.T) {
	dir := t.TempDir()

	got, err := Load(dir, ReportTemplate)
	if err != nil {
		t.Fatalf("builtin fallback: %v", err)
	}
	if got != reportTemplate {
		t.Error("expected builtin report template when no override exists")
	}

	if err := os.WriteFile(filepath.Join(dir, ReportTemplate), []byte("custom {{session_id}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = Load(dir, ReportTemplate)
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if got != "custom {{session_id}}" {
		t.Errorf("got %q", got)
	}
}

func TestLoad_RejectsBrokenOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ReportTemplate), []byte("{{#if status}}never closed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir, ReportTemplate); err == nil || !strings.Contains(err.Error(), "unclosed") {
		t.Errorf("err = %v, want unclosed section error", err)
	}
}

func TestLoad_RejectsPaths(t *testing.T) {
	for _, name := range []string{"../secret.txt", "/etc/passwd", "..", "sub/report.md"} {
		if _, err := Load(t.TempDir(), name); err == nil {
			t.Errorf("Load(%q) should fail", name)
		}
	}
}

func TestLoad_UnknownTemplate(t *testing.T) {
	if _, err := Load("", "nonexistent.md"); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestInstall_DoesNotOverwrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "templates")
	if err := Install(dir); err != nil {
		t.Fatalf("install: %v", err)
	}
	path := filepath.Join(dir, ReportTemplate)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("report template not installed: %v", err)
	}
	if err := os.WriteFile(path, []byte("edited"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Install(dir); err != nil {
		t.Fatalf("second install: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "edited" {
		t.Errorf("install overwrote user edits: %q", data)
	}
}
