package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/lucasnoah/sitefactory/internal/fileutil"
)

// Trend thresholds on the mean pairwise delta of average scores.
const (
	improvingDelta = 0.2
	decliningDelta = -0.2
)

// LoadReports reads every sessions/<id>/report.json under sessionsDir,
// oldest first. Unreadable reports are skipped.
func LoadReports(sessionsDir string) ([]*SessionReport, error) {
	entries, err := os.ReadDir(sessionsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var reports []*SessionReport
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var rep SessionReport
		if err := fileutil.ReadJSON(filepath.Join(sessionsDir, e.Name(), ReportFile), &rep); err != nil {
			continue
		}
		reports = append(reports, &rep)
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].StartedAt.Before(reports[j].StartedAt)
	})
	return reports, nil
}

// Latest returns the most recent report other than excludeID, or nil.
func Latest(sessionsDir, excludeID string) (*SessionReport, error) {
	reports, err := LoadReports(sessionsDir)
	if err != nil {
		return nil, err
	}
	for i := len(reports) - 1; i >= 0; i-- {
		if reports[i].SessionID != excludeID {
			return reports[i], nil
		}
	}
	return nil, nil
}

// AnalyzeTrends classifies the average-score series of the last k reports
// and extrapolates one step ahead.
func AnalyzeTrends(sessionsDir string, k int) (*Trend, error) {
	reports, err := LoadReports(sessionsDir)
	if err != nil {
		return nil, err
	}
	if k > 0 && len(reports) > k {
		reports = reports[len(reports)-k:]
	}

	t := &Trend{Direction: InsufficientData}
	for _, r := range reports {
		t.Points = append(t.Points, TrendPoint{SessionID: r.SessionID, StartedAt: r.StartedAt, AverageScore: r.AverageScore})
	}
	if len(t.Points) == 0 {
		return t, nil
	}
	last := t.Points[len(t.Points)-1].AverageScore
	t.Prediction = last
	if len(t.Points) < 2 {
		return t, nil
	}

	var sum float64
	for i := 1; i < len(t.Points); i++ {
		sum += t.Points[i].AverageScore - t.Points[i-1].AverageScore
	}
	t.MeanDelta = sum / float64(len(t.Points)-1)
	switch {
	case t.MeanDelta > improvingDelta:
		t.Direction = Improving
	case t.MeanDelta < decliningDelta:
		t.Direction = Declining
	default:
		t.Direction = Stable
	}
	t.Prediction = min(max(last+t.MeanDelta, 0), 10)
	return t, nil
}

// Cleanup removes all but the newest keep session directories and returns
// the ids it removed. Directories without a report are ordered by mtime.
func Cleanup(sessionsDir string, keep int, skip func(id string) bool) ([]string, error) {
	entries, err := os.ReadDir(sessionsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	type dir struct {
		id  string
		key int64
	}
	var dirs []dir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		key := info.ModTime().UnixNano()
		var rep SessionReport
		if err := fileutil.ReadJSON(filepath.Join(sessionsDir, e.Name(), ReportFile), &rep); err == nil && !rep.StartedAt.IsZero() {
			key = rep.StartedAt.UnixNano()
		}
		dirs = append(dirs, dir{id: e.Name(), key: key})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].key > dirs[j].key })

	var removed []string
	for i, d := range dirs {
		if i < keep || (skip != nil && skip(d.id)) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(sessionsDir, d.id)); err != nil {
			return removed, fmt.Errorf("remove session %s: %w", d.id, err)
		}
		removed = append(removed, d.id)
	}
	return removed, nil
}
