// Package orchestrator drives test sessions: for each website attempt it
// generates, builds, executes, scores and learns, checkpointing after every
// attempt, then reports and reflects on the whole session.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/sitefactory/internal/automation"
	"github.com/lucasnoah/sitefactory/internal/command"
	"github.com/lucasnoah/sitefactory/internal/config"
	"github.com/lucasnoah/sitefactory/internal/db"
	"github.com/lucasnoah/sitefactory/internal/engine"
	"github.com/lucasnoah/sitefactory/internal/graph"
	"github.com/lucasnoah/sitefactory/internal/learning"
	"github.com/lucasnoah/sitefactory/internal/report"
	"github.com/lucasnoah/sitefactory/internal/scoring"
	"github.com/lucasnoah/sitefactory/internal/session"
)

const (
	topLearnings   = 5
	persistTimeout = 30 * time.Second
)

// Deps are the collaborators an Orchestrator composes. Sessions, Learnings
// and Transport are required; the rest are optional.
type Deps struct {
	Sessions      *session.Store
	Learnings     *learning.Store
	Transport     automation.Transport
	Builder       SiteBuilder       // defaults to StaticBuilder over the session base URL
	DB            *db.DB            // event log; nil disables it
	Heuristic     scoring.Heuristic // defaults to scoring.Default(seed)
	Sink          graph.Sink        // staged graph records are drained here
	LearningsPath string            // imported at start, exported at end
	TemplatesDir  string            // report template overrides
}

// Orchestrator runs at most one session at a time.
type Orchestrator struct {
	deps     Deps
	progress io.Writer

	running atomic.Bool
	stop    atomic.Bool

	mu      sync.Mutex
	current *session.Session
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Builder == nil {
		deps.Builder = StaticBuilder{}
	}
	return &Orchestrator{deps: deps}
}

// SetProgress sets a writer for live progress output.
func (o *Orchestrator) SetProgress(w io.Writer) {
	o.progress = w
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.progress != nil {
		fmt.Fprintf(o.progress, "  → "+format+"\n", args...)
	}
}

// Stop asks the running session to end after the in-flight attempt.
func (o *Orchestrator) Stop() {
	o.stop.Store(true)
}

// Running reports whether a session is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// CurrentSessionID returns the id of the running session, or "".
func (o *Orchestrator) CurrentSessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return ""
	}
	return o.current.ID
}

// OptionsFrom snapshots the session-relevant configuration.
func OptionsFrom(cfg *config.Config) session.Options {
	s := cfg.Session
	return session.Options{
		WebsiteCount:        s.WebsiteCount,
		UseRealImages:       s.UseRealImages,
		RandomIndustries:    s.RandomIndustriesEnabled(),
		MaxRetries:          s.Retries(),
		TimeoutPerWebsite:   s.Timeout().String(),
		Headless:            s.HeadlessEnabled(),
		SaveScreenshots:     s.ScreenshotsEnabled(),
		QualityThreshold:    s.QualityThreshold,
		BaseURL:             s.BaseURL,
		Seed:                s.Seed,
		ActivationThreshold: cfg.Learning.ActivationThreshold,
	}
}

// run holds the per-session collaborators.
type run struct {
	cfg       *config.Config
	sess      *session.Session
	reporter  *report.Reporter
	gen       *command.Generator
	port      *automation.Port
	eng       *engine.Engine
	scorer    *scoring.Scorer
	learned   int
	execLog   []engine.ExecutionLogEntry
	prevScore *float64
}

// RunSession runs cfg.Session.WebsiteCount attempts and returns the session
// report. It returns ErrSessionRunning if a session is already in progress.
// Attempt failures are recorded and the session continues; a fault that
// escapes the loop marks the session failed and is returned as a
// *SessionFatalError together with the partial report.
func (o *Orchestrator) RunSession(ctx context.Context, cfg *config.Config) (rep *report.SessionReport, err error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrSessionRunning
	}
	defer o.running.Store(false)
	o.stop.Store(false)

	o.recoverInterrupted()

	if o.deps.LearningsPath != "" {
		if n, err := o.deps.Learnings.Import(o.deps.LearningsPath); err != nil {
			o.logf("import learnings: %v", err)
		} else if n > 0 {
			o.logf("imported %d learnings", n)
		}
	}

	r, err := o.newRun(cfg)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.current = r.sess
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.current = nil
		o.mu.Unlock()
	}()

	r.sess.Status = session.StatusRunning
	r.sess.StartedAt = time.Now().UTC()
	o.checkpoint(r)
	o.event(r.sess.ID, "started", fmt.Sprintf("target=%d", r.sess.TargetCount))
	_ = r.reporter.Logf("session %s started: %d websites", r.sess.ID, r.sess.TargetCount)

	defer func() {
		if v := recover(); v != nil {
			err = o.fail(r, panicError(v))
			rep = o.finish(ctx, r)
		}
	}()

	if loopErr := o.loop(ctx, r); loopErr != nil {
		err = o.fail(r, loopErr)
		return o.finish(ctx, r), err
	}

	if r.sess.Status == session.StatusRunning {
		r.sess.Status = session.StatusCompleted
	}
	return o.finish(ctx, r), nil
}

func (o *Orchestrator) newRun(cfg *config.Config) (*run, error) {
	opts := OptionsFrom(cfg)
	sess, err := o.deps.Sessions.Create(opts)
	if sess == nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err != nil {
		o.logf("checkpoint: %v", err)
	}
	o.event(sess.ID, "created", "")

	reporter := report.New(o.deps.Sessions.SessionsDir(), sess.ID)
	reporter.SetProgress(o.progress)
	reporter.SetTemplatesDir(o.deps.TemplatesDir)

	heuristic := o.deps.Heuristic
	if heuristic == nil {
		heuristic = scoring.Default(uint64(opts.Seed))
	}

	r := &run{
		cfg:      cfg,
		sess:     sess,
		reporter: reporter,
		gen: command.NewGenerator(command.Options{
			Seed: opts.Seed,
			Limits: command.Limits{
				Min:              cfg.Generator.MinCommands,
				Max:              cfg.Generator.MaxCommands,
				TruncateOverflow: cfg.Generator.TruncateOverflow,
			},
			MaxRetries:       opts.MaxRetries,
			RandomIndustries: opts.RandomIndustries,
		}),
		port:   automation.NewPort(o.deps.Transport),
		scorer: scoring.NewScorer(heuristic, opts.QualityThreshold),
	}
	r.gen.SetProgress(o.progress)
	r.eng = engine.New(r.port, engine.Options{
		MaxRetries:      opts.MaxRetries,
		CommandDelay:    cfg.Execution.CommandDelayDuration(),
		RetryDelay:      cfg.Execution.RetryDelayDuration(),
		SaveScreenshots: opts.SaveScreenshots,
		SelectorAttr:    cfg.Automation.SelectorAttr,
	})
	r.eng.SetProgress(o.progress)

	if prev, err := report.Latest(o.deps.Sessions.SessionsDir(), sess.ID); err != nil {
		o.logf("load previous report: %v", err)
	} else if prev != nil {
		avg := prev.AverageScore
		r.prevScore = &avg
	}
	return r, nil
}

// loop runs the attempts. Stop and cancellation are honoured only between
// attempts; the in-flight website always finishes.
func (o *Orchestrator) loop(ctx context.Context, r *run) error {
	for i := r.sess.CurrentIndex; i < r.sess.TargetCount; i++ {
		if o.stop.Load() {
			r.sess.Status = session.StatusPaused
			o.logf("stop requested; %d/%d websites tested", i, r.sess.TargetCount)
			o.event(r.sess.ID, "stopped", fmt.Sprintf("after=%d", i))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		wr, res, attemptErr := o.attempt(ctx, r, i)
		o.record(r, wr, res, attemptErr)
	}
	return nil
}

// attempt runs one website end to end. Errors and panics are returned as
// *IterationError alongside whatever was recorded before the fault.
func (o *Orchestrator) attempt(ctx context.Context, r *run, index int) (wr report.WebsiteReport, res *engine.Result, err error) {
	start := time.Now()
	wr = report.WebsiteReport{
		SessionID: r.sess.ID,
		WebsiteID: "site-" + uuid.NewString()[:8],
		Index:     index,
		Timestamp: start.UTC(),
	}
	defer func() {
		if v := recover(); v != nil {
			err = &IterationError{Index: index, WebsiteID: wr.WebsiteID, Err: panicError(v)}
		}
		wr.DurationMS = time.Since(start).Milliseconds()
	}()

	profile := r.gen.NewProfile(r.sess.Config.BaseURL, r.sess.Config.UseRealImages)
	wr.Industry = profile.Industry.ID
	wr.Template = profile.Template.ID
	wr.BusinessName = profile.BusinessName
	o.logf("[%d/%d] %s: %q (%s/%s)", index+1, r.sess.TargetCount, wr.WebsiteID, profile.BusinessName, wr.Industry, wr.Template)

	actx, cancel := context.WithTimeout(ctx, r.cfg.Session.Timeout())
	defer cancel()

	baseURL, err := o.deps.Builder.Build(actx, BuildRequest{SessionID: r.sess.ID, WebsiteID: wr.WebsiteID, Profile: profile})
	if err != nil {
		return wr, nil, &IterationError{Index: index, WebsiteID: wr.WebsiteID, Err: fmt.Errorf("build: %w", err)}
	}
	profile.BaseURL = baseURL
	wr.BaseURL = baseURL

	cmds := r.gen.Generate(profile)
	cmds, applied := o.deps.Learnings.Apply(cmds)
	wr.LearningsApplied = len(applied)

	r.port.ResetHistory()
	res = r.eng.Execute(actx, r.sess.ID, wr.WebsiteID, cmds)

	score := r.scorer.Evaluate(scoring.Stats{
		WebsiteID: wr.WebsiteID,
		Success:   res.Success,
		Total:     res.Total,
		Snapshots: res.Snapshots,
	})
	wr.Score = score
	wr.Success = score.MeetsThreshold
	wr.CommandsTotal = res.Total
	wr.CommandsSucceeded = res.Success
	wr.CommandsFailed = res.Failed
	wr.CommandsSkipped = res.Skipped
	wr.Failures = len(res.Failures)
	wr.Recovered = len(res.Recovered)
	wr.Screenshots = res.Screenshots

	learned := o.deps.Learnings.LearnFromResult(learning.Outcome{
		SessionID:        r.sess.ID,
		WebsiteID:        wr.WebsiteID,
		Industry:         wr.Industry,
		Template:         wr.Template,
		Score:            score,
		Failures:         res.AllFailures(),
		CommandsExecuted: res.Total,
	})
	wr.LearningsGenerated = len(learned)
	for _, l := range learned {
		r.sess.Learnings = append(r.sess.Learnings, l.ID)
	}
	r.learned += len(learned)

	for _, id := range applied {
		if err := o.deps.Learnings.UpdateEffectiveness(id, score.OverallScore/10); err != nil {
			o.logf("update effectiveness %s: %v", id, err)
		}
	}
	return wr, res, nil
}

// record applies one attempt to the session and persists it. Persistence
// failures are logged and swallowed.
func (o *Orchestrator) record(r *run, wr report.WebsiteReport, res *engine.Result, attemptErr error) {
	if attemptErr != nil {
		wr.Error = attemptErr.Error()
		wr.Success = false
		if wr.Score.Categories == nil {
			wr.Score = r.scorer.Evaluate(scoring.Stats{WebsiteID: wr.WebsiteID})
		}
		o.logf("attempt %d failed: %v", wr.Index+1, attemptErr)
	}

	sess := r.sess
	sess.CurrentIndex = wr.Index + 1
	sess.QualityScores = append(sess.QualityScores, wr.Score)
	sess.Attempts = append(sess.Attempts, session.AttemptSummary{
		Index:        wr.Index,
		WebsiteID:    wr.WebsiteID,
		Industry:     wr.Industry,
		Template:     wr.Template,
		BusinessName: wr.BusinessName,
		OverallScore: wr.Score.OverallScore,
		Verdict:      wr.Score.Verdict,
		Success:      wr.Success,
		Commands:     wr.CommandsTotal,
		Failures:     wr.Failures,
		DurationMS:   wr.DurationMS,
		Error:        wr.Error,
	})
	if res != nil {
		sess.FailureLog = append(sess.FailureLog, res.AllFailures()...)
		if err := r.reporter.LogExecution(res.Log); err != nil {
			o.logf("execution log: %v", err)
		}
	}

	if err := r.reporter.LogAttempt(wr); err != nil {
		o.logf("attempt log: %v", err)
	}
	_ = r.reporter.Logf("attempt %d %s %s/%s score=%.2f verdict=%s success=%t%s",
		wr.Index+1, wr.WebsiteID, wr.Industry, wr.Template, wr.Score.OverallScore, wr.Score.Verdict, wr.Success, errSuffix(wr.Error))
	o.logAttemptDB(r, wr, res)
	o.checkpoint(r)
	o.logf("[%d/%d] %s scored %.2f (%s)", wr.Index+1, sess.TargetCount, wr.WebsiteID, wr.Score.OverallScore, wr.Score.Verdict)
}

func errSuffix(msg string) string {
	if msg == "" {
		return ""
	}
	return " error=" + msg
}

func (o *Orchestrator) logAttemptDB(r *run, wr report.WebsiteReport, res *engine.Result) {
	if o.deps.DB == nil {
		return
	}
	_ = o.deps.DB.LogAttempt(db.AttemptRun{
		SessionID:    r.sess.ID,
		WebsiteID:    wr.WebsiteID,
		Index:        wr.Index,
		Industry:     wr.Industry,
		Template:     wr.Template,
		OverallScore: wr.Score.OverallScore,
		Verdict:      wr.Score.Verdict,
		Success:      wr.Success,
		Commands:     wr.CommandsTotal,
		Failed:       wr.CommandsFailed,
		DurationMs:   wr.DurationMS,
		Error:        wr.Error,
	})
	o.event(r.sess.ID, "attempt", fmt.Sprintf("index=%d website=%s score=%.2f", wr.Index, wr.WebsiteID, wr.Score.OverallScore))
	if res == nil {
		return
	}

	rows := make([]db.CommandLog, 0, len(res.Log))
	for _, e := range res.Log {
		rows = append(rows, db.CommandLog{
			SessionID:  e.SessionID,
			WebsiteID:  e.WebsiteID,
			CommandID:  e.CommandID,
			Action:     e.Action,
			Status:     string(e.Status),
			Attempt:    e.Attempt,
			DurationMs: e.DurationMS,
			Error:      e.Error,
		})
	}
	_ = o.deps.DB.LogCommands(rows)
	for _, f := range res.AllFailures() {
		_ = o.deps.DB.LogFailure(db.CommandFailure{
			FailureID:        f.ID,
			SessionID:        r.sess.ID,
			WebsiteID:        f.WebsiteID,
			CommandID:        f.CommandID,
			Step:             f.Step,
			ErrorType:        string(f.ErrorType),
			Message:          f.ErrorMessage,
			RecoveryAttempts: f.RecoveryAttempts,
			Resolved:         f.Resolved,
		})
	}
}

// fail marks the session failed and wraps cause as a *SessionFatalError.
func (o *Orchestrator) fail(r *run, cause error) error {
	r.sess.Status = session.StatusFailed
	r.sess.Error = cause.Error()
	o.logf("session %s failed: %v", r.sess.ID, cause)
	return &SessionFatalError{SessionID: r.sess.ID, Err: cause}
}

// finish builds and persists the report, reflects, exports learnings,
// drains the graph staging area and writes the final checkpoint.
func (o *Orchestrator) finish(ctx context.Context, r *run) *report.SessionReport {
	sess := r.sess
	sess.CompletedAt = time.Now().UTC()

	rep := r.reporter.GenerateSessionReport(report.Summary{
		SessionID:          sess.ID,
		Status:             string(sess.Status),
		TargetCount:        sess.TargetCount,
		StartedAt:          sess.StartedAt,
		CompletedAt:        sess.CompletedAt,
		LearningsGenerated: r.learned,
		TopLearnings:       o.deps.Learnings.Top(topLearnings),
		PreviousAverage:    r.prevScore,
	})

	refl := o.deps.Learnings.Reflect(learning.ReflectInput{
		SessionID:          sess.ID,
		AverageScore:       rep.AverageScore,
		PreviousAverage:    r.prevScore,
		CommandSuccessRate: rep.CommandSuccessRate,
		TopLearnings:       rep.TopLearnings,
	})
	for _, l := range refl.NewLearnings {
		sess.Learnings = append(sess.Learnings, l.ID)
	}
	for _, in := range refl.Insights {
		o.logf("insight: %s", in)
	}

	if err := r.reporter.Persist(rep, &refl); err != nil {
		o.logf("persist report: %v", err)
	}

	if o.deps.LearningsPath != "" {
		if err := o.deps.Learnings.Export(o.deps.LearningsPath); err != nil {
			o.logf("export learnings: %v", err)
		}
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	o.drainGraph(pctx, sess.ID)

	o.checkpoint(r)
	o.event(sess.ID, string(sess.Status), sess.Error)
	_ = r.reporter.Logf("session %s %s: %d websites, average %.2f", sess.ID, sess.Status, rep.TotalWebsites, rep.AverageScore)
	return rep
}

// drainGraph writes staged entities and relations to the sink and clears
// the staging area on success. Failed writes stay staged for the next session.
func (o *Orchestrator) drainGraph(ctx context.Context, sessionID string) {
	if o.deps.Sink == nil {
		return
	}
	entities := append(o.deps.Learnings.StagedEntities(), graph.Entity{
		Name:         "session:" + sessionID,
		EntityType:   "session",
		Observations: []string{"completed at " + time.Now().UTC().Format(time.RFC3339)},
	})
	relations := o.deps.Learnings.StagedRelations()
	if err := o.deps.Sink.Write(ctx, entities, relations); err != nil {
		o.logf("graph export: %v", err)
		return
	}
	o.deps.Learnings.ClearStaged()
	o.logf("graph export: %d entities, %d relations", len(entities), len(relations))
}

func (o *Orchestrator) checkpoint(r *run) {
	if err := o.deps.Sessions.Save(r.sess); err != nil {
		o.logf("checkpoint: %v", err)
	}
}

func (o *Orchestrator) event(sessionID, event, detail string) {
	if o.deps.DB == nil {
		return
	}
	_ = o.deps.DB.LogSessionEvent(sessionID, event, detail)
}

// recoverInterrupted marks a session left running by a crash as failed.
func (o *Orchestrator) recoverInterrupted() {
	sess, err := o.deps.Sessions.RecoverInterrupted()
	if err != nil {
		o.logf("recover checkpoint: %v", err)
	}
	if sess != nil {
		o.logf("session %s was interrupted at %d/%d; marked failed", sess.ID, sess.CurrentIndex, sess.TargetCount)
		o.event(sess.ID, "interrupted", fmt.Sprintf("index=%d", sess.CurrentIndex))
	}
}
