package report

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lucasnoah/sitefactory/internal/engine"
	"github.com/lucasnoah/sitefactory/internal/fileutil"
	"github.com/lucasnoah/sitefactory/internal/learning"
	"github.com/lucasnoah/sitefactory/internal/render"
)

// Files written under each session directory.
const (
	AttemptsFile   = "attempts.jsonl"
	ExecutionFile  = "execution.jsonl"
	LogFile        = "session.log"
	ReportFile     = "report.json"
	MarkdownFile   = "report.md"
	ReflectionFile = "reflection.json"
)

// Recommendation thresholds.
const (
	failuresPerWebsiteLimit = 5.0
	learningVolumeLimit     = 50
)

// Reporter persists one session's attempts and logs as they arrive.
type Reporter struct {
	mu           sync.Mutex
	dir          string
	templatesDir string
	websites     []WebsiteReport
	progress     io.Writer
	now          func() time.Time
}

// New returns a Reporter writing under sessionsDir/<sessionID>/.
func New(sessionsDir, sessionID string) *Reporter {
	return &Reporter{
		dir: filepath.Join(sessionsDir, sessionID),
		now: time.Now,
	}
}

// SetProgress sets a writer for progress output.
func (r *Reporter) SetProgress(w io.Writer) { r.progress = w }

// SetTemplatesDir points the Markdown renderer at a directory of overrides.
func (r *Reporter) SetTemplatesDir(dir string) { r.templatesDir = dir }

// Dir returns the session directory.
func (r *Reporter) Dir() string { return r.dir }

func (r *Reporter) logf(format string, args ...any) {
	if r.progress != nil {
		fmt.Fprintf(r.progress, "  → "+format+"\n", args...)
	}
}

// LogAttempt records one website attempt and appends it to attempts.jsonl.
// The in-memory copy is kept even when the write fails.
func (r *Reporter) LogAttempt(wr WebsiteReport) error {
	r.mu.Lock()
	r.websites = append(r.websites, wr)
	r.mu.Unlock()
	if err := fileutil.AppendJSONLine(filepath.Join(r.dir, AttemptsFile), wr); err != nil {
		return fmt.Errorf("log attempt %s: %w", wr.WebsiteID, err)
	}
	return nil
}

// LogExecution appends execution log entries to execution.jsonl.
func (r *Reporter) LogExecution(entries []engine.ExecutionLogEntry) error {
	path := filepath.Join(r.dir, ExecutionFile)
	for _, e := range entries {
		if err := fileutil.AppendJSONLine(path, e); err != nil {
			return fmt.Errorf("log execution: %w", err)
		}
	}
	return nil
}

// Logf appends a timestamped line to session.log.
func (r *Reporter) Logf(format string, args ...any) error {
	line := r.now().UTC().Format(time.RFC3339) + " " + fmt.Sprintf(format, args...)
	return fileutil.AppendLine(filepath.Join(r.dir, LogFile), line)
}

// Websites returns a copy of the attempts recorded so far.
func (r *Reporter) Websites() []WebsiteReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.websites)
}

// GenerateSessionReport builds the session report from the attempts
// recorded so far. Websites in the summary are ignored.
func (r *Reporter) GenerateSessionReport(in Summary) *SessionReport {
	in.Websites = r.Websites()
	rep := Summarize(in)
	r.logf("report: %d websites, average %.2f", rep.TotalWebsites, rep.AverageScore)
	return rep
}

// Persist writes report.json, report.md and, when given, reflection.json.
func (r *Reporter) Persist(rep *SessionReport, refl *learning.Reflection) error {
	if err := fileutil.WriteJSON(filepath.Join(r.dir, ReportFile), rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if refl != nil {
		if err := fileutil.WriteJSON(filepath.Join(r.dir, ReflectionFile), refl); err != nil {
			return fmt.Errorf("write reflection: %w", err)
		}
	}
	md, err := r.Markdown(rep, refl)
	if err != nil {
		return err
	}
	if err := fileutil.WriteAtomic(filepath.Join(r.dir, MarkdownFile), []byte(md)); err != nil {
		return fmt.Errorf("write report markdown: %w", err)
	}
	return nil
}

// Markdown renders rep (and optional reflection insights) with the report
// template.
func (r *Reporter) Markdown(rep *SessionReport, refl *learning.Reflection) (string, error) {
	tmpl, err := render.Load(r.templatesDir, render.ReportTemplate)
	if err != nil {
		return "", err
	}
	out, err := render.Render(tmpl, markdownVars(rep, refl))
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return out, nil
}

func markdownVars(rep *SessionReport, refl *learning.Reflection) render.Vars {
	vars := render.Vars{
		"session_id":           rep.SessionID,
		"status":               rep.Status,
		"started_at":           rep.StartedAt.UTC().Format(time.RFC3339),
		"duration":             (time.Duration(rep.DurationMS) * time.Millisecond).String(),
		"websites_tested":      fmt.Sprint(rep.TotalWebsites),
		"websites_succeeded":   fmt.Sprint(rep.Succeeded),
		"websites_failed":      fmt.Sprint(rep.Failed),
		"average_score":        fmt.Sprintf("%.2f", rep.AverageScore),
		"best_score":           fmt.Sprintf("%.2f", rep.BestScore),
		"worst_score":          fmt.Sprintf("%.2f", rep.WorstScore),
		"command_success_rate": fmt.Sprintf("%.1f%%", rep.CommandSuccessRate*100),
		"learnings_generated":  fmt.Sprint(rep.LearningsGenerated),
		"improvement":          "",
		"top_learnings":        "",
		"recommendations":      bullets(rep.Recommendations),
		"insights":             "",
	}
	if rep.ImprovementFromPrevious != nil {
		vars["improvement"] = fmt.Sprintf("%+.1f%%", *rep.ImprovementFromPrevious)
	}

	var sites []string
	for _, w := range rep.Websites {
		line := fmt.Sprintf("- %s: %s / %s (%s) scored %.2f %s, %d/%d commands",
			w.WebsiteID, w.Industry, w.Template, w.BusinessName,
			w.Score.OverallScore, w.Score.Verdict, w.CommandsSucceeded, w.CommandsTotal)
		if w.Error != "" {
			line += ", error: " + w.Error
		}
		sites = append(sites, line)
	}
	vars["websites"] = strings.Join(sites, "\n")
	if len(sites) == 0 {
		vars["websites"] = "No websites were tested."
	}

	var top []string
	for _, l := range rep.TopLearnings {
		top = append(top, fmt.Sprintf("- [%s] %s (effectiveness %.2f)", l.Type, l.Insight, l.EffectivenessScore))
	}
	vars["top_learnings"] = strings.Join(top, "\n")

	if refl != nil {
		vars["insights"] = bullets(append(slices.Clone(refl.Insights), refl.Suggestions...))
	}
	return vars
}

func bullets(lines []string) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- " + l)
	}
	return b.String()
}

// Summarize computes aggregate statistics and recommendations.
func Summarize(in Summary) *SessionReport {
	rep := &SessionReport{
		SessionID:          in.SessionID,
		Status:             in.Status,
		TargetCount:        in.TargetCount,
		StartedAt:          in.StartedAt,
		CompletedAt:        in.CompletedAt,
		TotalWebsites:      len(in.Websites),
		LearningsGenerated: in.LearningsGenerated,
		TopLearnings:       in.TopLearnings,
		Websites:           in.Websites,
	}
	if !in.CompletedAt.IsZero() && !in.StartedAt.IsZero() {
		rep.DurationMS = in.CompletedAt.Sub(in.StartedAt).Milliseconds()
	}

	var sum float64
	for i, w := range in.Websites {
		s := w.Score.OverallScore
		sum += s
		if i == 0 || s > rep.BestScore {
			rep.BestScore = s
		}
		if i == 0 || s < rep.WorstScore {
			rep.WorstScore = s
		}
		if w.Success {
			rep.Succeeded++
		} else {
			rep.Failed++
		}
		rep.CommandsTotal += w.CommandsTotal
		rep.CommandsSucceeded += w.CommandsSucceeded
		rep.TotalFailures += w.Failures
	}
	if rep.TotalWebsites > 0 {
		rep.AverageScore = sum / float64(rep.TotalWebsites)
	}
	if rep.CommandsTotal > 0 {
		rep.CommandSuccessRate = float64(rep.CommandsSucceeded) / float64(rep.CommandsTotal)
	}
	if in.PreviousAverage != nil && *in.PreviousAverage > 0 {
		pct := (rep.AverageScore - *in.PreviousAverage) / *in.PreviousAverage * 100
		rep.ImprovementFromPrevious = &pct
	}
	rep.Recommendations = recommendations(rep)
	return rep
}

func recommendations(rep *SessionReport) []string {
	var recs []string
	switch {
	case rep.AverageScore < 4:
		recs = append(recs, "Quality is poor: fix the failing wizard steps before tuning content")
	case rep.AverageScore < 6:
		recs = append(recs, "Quality is below target: focus on the lowest-scoring categories")
	case rep.AverageScore < 8:
		recs = append(recs, "Quality is good: polish the weakest categories to reach excellent")
	default:
		recs = append(recs, "Quality is excellent: consider raising the quality threshold")
	}

	if rep.TotalWebsites > 0 {
		perSite := float64(rep.TotalFailures) / float64(rep.TotalWebsites)
		if perSite > failuresPerWebsiteLimit {
			recs = append(recs, fmt.Sprintf("High failure volume (%.1f per website): review selectors and timeouts", perSite))
		}
	}

	switch {
	case rep.LearningsGenerated == 0:
		recs = append(recs, "No learnings were generated: check that results reach the learning store")
	case rep.LearningsGenerated > learningVolumeLimit:
		recs = append(recs, fmt.Sprintf("%d learnings were generated: prune low-effectiveness learnings", rep.LearningsGenerated))
	}
	return recs
}
