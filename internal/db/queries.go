package db

import (
	"database/sql"
	"fmt"
)

// SessionEvent represents a row in the session_events table.
type SessionEvent struct {
	ID        int
	SessionID string
	Event     string
	Detail    string
	Timestamp string
}

// AttemptRun represents a row in the attempt_runs table.
type AttemptRun struct {
	ID           int
	SessionID    string
	WebsiteID    string
	Index        int
	Industry     string
	Template     string
	OverallScore float64
	Verdict      string
	Success      bool
	Commands     int
	Failed       int
	DurationMs   int64
	Error        string
	Timestamp    string
}

// CommandLog represents a row in the command_log table.
type CommandLog struct {
	SessionID  string
	WebsiteID  string
	CommandID  string
	Action     string
	Status     string
	Attempt    int
	DurationMs int64
	Error      string
}

// CommandFailure represents a row in the command_failures table.
type CommandFailure struct {
	FailureID        string
	SessionID        string
	WebsiteID        string
	CommandID        string
	Step             string
	ErrorType        string
	Message          string
	RecoveryAttempts int
	Resolved         bool
}

// LogSessionEvent inserts a session lifecycle event.
func (d *DB) LogSessionEvent(sessionID, event, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO session_events (session_id, event, detail) VALUES (?, ?, ?)`,
		sessionID, event, detail,
	)
	if err != nil {
		return fmt.Errorf("log session event: %w", err)
	}
	return nil
}

// ListSessionEvents returns events for a session in insertion order.
// Pass "" to list events for every session.
func (d *DB) ListSessionEvents(sessionID string) ([]SessionEvent, error) {
	query := `SELECT id, session_id, event, detail, timestamp FROM session_events`
	var args []interface{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id`

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	defer rows.Close()

	var events []SessionEvent
	for rows.Next() {
		var e SessionEvent
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Event, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LogAttempt inserts one website attempt.
func (d *DB) LogAttempt(a AttemptRun) error {
	_, err := d.conn.Exec(
		`INSERT INTO attempt_runs (session_id, website_id, idx, industry, template, overall_score, verdict, success, commands, failed, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.WebsiteID, a.Index, a.Industry, a.Template, a.OverallScore, a.Verdict, a.Success, a.Commands, a.Failed, a.DurationMs, a.Error,
	)
	if err != nil {
		return fmt.Errorf("log attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the attempts of a session ordered by index.
func (d *DB) ListAttempts(sessionID string) ([]AttemptRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, session_id, website_id, idx, industry, template, overall_score, verdict, success, commands, failed, duration_ms, error, timestamp
		 FROM attempt_runs WHERE session_id = ? ORDER BY idx, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var runs []AttemptRun
	for rows.Next() {
		var a AttemptRun
		var duration sql.NullInt64
		var errText sql.NullString
		if err := rows.Scan(&a.ID, &a.SessionID, &a.WebsiteID, &a.Index, &a.Industry, &a.Template, &a.OverallScore, &a.Verdict, &a.Success, &a.Commands, &a.Failed, &duration, &errText, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if duration.Valid {
			a.DurationMs = duration.Int64
		}
		if errText.Valid {
			a.Error = errText.String
		}
		runs = append(runs, a)
	}
	return runs, rows.Err()
}

// LogCommands inserts execution log rows in one transaction.
func (d *DB) LogCommands(entries []CommandLog) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO command_log (session_id, website_id, command_id, action, status, attempt, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.SessionID, e.WebsiteID, e.CommandID, e.Action, e.Status, e.Attempt, e.DurationMs, e.Error); err != nil {
			return fmt.Errorf("insert command %s: %w", e.CommandID, err)
		}
	}
	return tx.Commit()
}

// LogFailure inserts one command failure.
func (d *DB) LogFailure(f CommandFailure) error {
	_, err := d.conn.Exec(
		`INSERT INTO command_failures (failure_id, session_id, website_id, command_id, step, error_type, message, recovery_attempts, resolved)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FailureID, f.SessionID, f.WebsiteID, f.CommandID, f.Step, f.ErrorType, f.Message, f.RecoveryAttempts, f.Resolved,
	)
	if err != nil {
		return fmt.Errorf("log failure: %w", err)
	}
	return nil
}
