package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
}

// ActionFailureRate holds attempt-level failure stats for one command action.
type ActionFailureRate struct {
	Action   string  `json:"action"`
	Attempts int     `json:"attempts"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	FailRate float64 `json:"fail_rate_pct"`
	AvgMs    float64 `json:"avg_ms"`
	P95Ms    float64 `json:"p95_ms"`
}

// QueryActionFailureRates returns per-action failure rates over every logged
// attempt, worst first. Skipped commands do not count as attempts.
func QueryActionFailureRates(database DB, since string) ([]ActionFailureRate, error) {
	query := `SELECT action, status, COALESCE(duration_ms, 0) FROM command_log`
	args := []interface{}{}
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query action failure rates: %w", err)
	}
	defer rows.Close()

	type actionInfo struct {
		failed, skipped int
		durations       []float64
	}
	byAction := make(map[string]*actionInfo)
	for rows.Next() {
		var action, status string
		var ms int64
		if err := rows.Scan(&action, &status, &ms); err != nil {
			return nil, fmt.Errorf("scan command log: %w", err)
		}
		info := byAction[action]
		if info == nil {
			info = &actionInfo{}
			byAction[action] = info
		}
		switch status {
		case "skipped":
			info.skipped++
			continue
		case "failed":
			info.failed++
		}
		info.durations = append(info.durations, float64(ms))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []ActionFailureRate
	for action, info := range byAction {
		sort.Float64s(info.durations)
		attempts := len(info.durations)
		results = append(results, ActionFailureRate{
			Action:   action,
			Attempts: attempts,
			Failed:   info.failed,
			Skipped:  info.skipped,
			FailRate: pct(info.failed, attempts),
			AvgMs:    avg(info.durations),
			P95Ms:    percentile(info.durations, 95),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].FailRate != results[j].FailRate {
			return results[i].FailRate > results[j].FailRate
		}
		return results[i].Action < results[j].Action
	})
	return results, nil
}

// IndustryScore holds score stats for one industry/template pair.
type IndustryScore struct {
	Industry    string  `json:"industry"`
	Template    string  `json:"template"`
	Attempts    int     `json:"attempts"`
	AvgScore    float64 `json:"avg_score"`
	P50Score    float64 `json:"p50_score"`
	SuccessRate float64 `json:"success_rate_pct"`
}

// QueryIndustryScores returns score stats per industry and template, best
// average first.
func QueryIndustryScores(database DB, since string) ([]IndustryScore, error) {
	query := `SELECT industry, template, overall_score, success FROM attempt_runs`
	args := []interface{}{}
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query industry scores: %w", err)
	}
	defer rows.Close()

	type key struct{ industry, template string }
	type info struct {
		scores    []float64
		successes int
	}
	groups := make(map[key]*info)
	for rows.Next() {
		var k key
		var score float64
		var success bool
		if err := rows.Scan(&k.industry, &k.template, &score, &success); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		g := groups[k]
		if g == nil {
			g = &info{}
			groups[k] = g
		}
		g.scores = append(g.scores, score)
		if success {
			g.successes++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []IndustryScore
	for k, g := range groups {
		sort.Float64s(g.scores)
		results = append(results, IndustryScore{
			Industry:    k.industry,
			Template:    k.template,
			Attempts:    len(g.scores),
			AvgScore:    avg(g.scores),
			P50Score:    percentile(g.scores, 50),
			SuccessRate: pct(g.successes, len(g.scores)),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].AvgScore != results[j].AvgScore {
			return results[i].AvgScore > results[j].AvgScore
		}
		if results[i].Industry != results[j].Industry {
			return results[i].Industry < results[j].Industry
		}
		return results[i].Template < results[j].Template
	})
	return results, nil
}

// VerdictCount holds how often a verdict was given.
type VerdictCount struct {
	Verdict string  `json:"verdict"`
	Count   int     `json:"count"`
	Pct     float64 `json:"pct"`
}

// QueryVerdictDistribution returns how attempts are spread across verdicts,
// most frequent first.
func QueryVerdictDistribution(database DB, since string) ([]VerdictCount, error) {
	query := `SELECT verdict, COUNT(*) FROM attempt_runs`
	args := []interface{}{}
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY verdict ORDER BY COUNT(*) DESC, verdict`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query verdict distribution: %w", err)
	}
	defer rows.Close()

	var results []VerdictCount
	total := 0
	for rows.Next() {
		var v VerdictCount
		if err := rows.Scan(&v.Verdict, &v.Count); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		total += v.Count
		results = append(results, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Pct = pct(results[i].Count, total)
	}
	return results, nil
}

// StepFailure holds failure counts for one step and error type.
type StepFailure struct {
	Step         string  `json:"step"`
	ErrorType    string  `json:"error_type"`
	Total        int     `json:"total"`
	ResolvedRate float64 `json:"resolved_pct"`
}

// QueryStepFailures returns failure counts grouped by step and error type,
// most frequent first.
func QueryStepFailures(database DB, since string) ([]StepFailure, error) {
	query := `
		SELECT step, error_type, COUNT(*),
			SUM(CASE WHEN resolved THEN 1 ELSE 0 END)
		FROM command_failures`
	args := []interface{}{}
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY step, error_type ORDER BY COUNT(*) DESC, step, error_type`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query step failures: %w", err)
	}
	defer rows.Close()

	var results []StepFailure
	for rows.Next() {
		var f StepFailure
		var resolved int
		if err := rows.Scan(&f.Step, &f.ErrorType, &f.Total, &resolved); err != nil {
			return nil, fmt.Errorf("scan step failure: %w", err)
		}
		f.ResolvedRate = pct(resolved, f.Total)
		results = append(results, f)
	}
	return results, rows.Err()
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
