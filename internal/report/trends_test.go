package report

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lucasnoah/sitefactory/internal/fileutil"
)

func writeReports(t *testing.T, dir string, scores ...float64) {
	t.Helper()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, s := range scores {
		id := "sess-" + string(rune('a'+i))
		rep := SessionReport{SessionID: id, StartedAt: base.Add(time.Duration(i) * time.Hour), AverageScore: s}
		if err := fileutil.WriteJSON(filepath.Join(dir, id, ReportFile), rep); err != nil {
			t.Fatalf("write report: %v", err)
		}
	}
}

func TestAnalyzeTrends(t *testing.T) {
	tests := []struct {
		name       string
		scores     []float64
		k          int
		direction  Direction
		prediction float64
	}{
		{"none", nil, 5, InsufficientData, 0},
		{"single", []float64{6}, 5, InsufficientData, 6},
		{"improving", []float64{5, 6, 7}, 5, Improving, 8},
		{"declining", []float64{8, 7, 6}, 5, Declining, 5},
		{"stable", []float64{7, 7.1, 7.2}, 5, Stable, 7.3},
		{"clamped high", []float64{8, 9, 10}, 5, Improving, 10},
		{"clamped low", []float64{2, 1, 0}, 5, Declining, 0},
		{"last k only", []float64{1, 9, 7, 7}, 2, Stable, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeReports(t, dir, tt.scores...)
			tr, err := AnalyzeTrends(dir, tt.k)
			if err != nil {
				t.Fatalf("analyze: %v", err)
			}
			if tr.Direction != tt.direction {
				t.Errorf("direction = %s, want %s", tr.Direction, tt.direction)
			}
			if math.Abs(tr.Prediction-tt.prediction) > 1e-9 {
				t.Errorf("prediction = %v, want %v", tr.Prediction, tt.prediction)
			}
		})
	}
}

func TestAnalyzeTrends_MissingDir(t *testing.T) {
	tr, err := AnalyzeTrends(filepath.Join(t.TempDir(), "nope"), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Direction != InsufficientData {
		t.Errorf("direction = %s", tr.Direction)
	}
}

func TestLoadReports_SkipsBroken(t *testing.T) {
	dir := t.TempDir()
	writeReports(t, dir, 5, 6)
	if err := os.MkdirAll(filepath.Join(dir, "broken"), 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "broken", ReportFile), []byte("{"), 0o644)
	os.MkdirAll(filepath.Join(dir, "in-progress"), 0o755)

	reports, err := LoadReports(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(reports) != 2 || reports[0].SessionID != "sess-a" {
		t.Errorf("reports = %+v", reports)
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	writeReports(t, dir, 5, 6, 7)

	rep, err := Latest(dir, "")
	if err != nil || rep == nil || rep.SessionID != "sess-c" {
		t.Fatalf("latest = %+v, %v", rep, err)
	}
	rep, _ = Latest(dir, "sess-c")
	if rep == nil || rep.SessionID != "sess-b" {
		t.Errorf("latest excluding sess-c = %+v", rep)
	}
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	writeReports(t, dir, 1, 2, 3, 4)

	removed, err := Cleanup(dir, 2, func(id string) bool { return id == "sess-a" })
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(removed) != 1 || removed[0] != "sess-b" {
		t.Errorf("removed = %v, want [sess-b]", removed)
	}
	for _, id := range []string{"sess-a", "sess-c", "sess-d"} {
		if _, err := os.Stat(filepath.Join(dir, id)); err != nil {
			t.Errorf("%s should survive: %v", id, err)
		}
	}
}
