// Package learning implements the reflexion loop: it derives learnings from
// each attempt, stages them for the knowledge graph, applies them to future
// command lists, and reflects on finished sessions.
package learning

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/sitefactory/internal/command"
	"github.com/lucasnoah/sitefactory/internal/engine"
	"github.com/lucasnoah/sitefactory/internal/graph"
	"github.com/lucasnoah/sitefactory/internal/scoring"
)

// ErrNotFound is returned for an unknown learning id.
var ErrNotFound = errors.New("learning not found")

const (
	initialEffectiveness = 0.5
	maxRetryBudget       = 5
	timeoutScale         = 1.5
	waitTimeMarker       = "wait time"
)

// Store holds learnings in memory. It is safe for concurrent use.
type Store struct {
	qualityThreshold float64
	activation       float64

	mu        sync.Mutex
	learnings []*Learning
	byID      map[string]*Learning
	entities  []graph.Entity
	relations []graph.Relation

	progress io.Writer
	now      func() time.Time
}

// NewStore creates an empty Store.
func NewStore(qualityThreshold, activationThreshold float64) *Store {
	return &Store{
		qualityThreshold: qualityThreshold,
		activation:       activationThreshold,
		byID:             make(map[string]*Learning),
		now:              time.Now,
	}
}

// SetProgress sets a writer for live progress output.
func (s *Store) SetProgress(w io.Writer) {
	s.progress = w
}

func (s *Store) logf(format string, args ...interface{}) {
	if s.progress != nil {
		fmt.Fprintf(s.progress, "  → "+format+"\n", args...)
	}
}

func newID() string {
	return "lrn-" + uuid.NewString()
}

// add stores l and stages its graph records. Caller holds s.mu.
func (s *Store) add(l *Learning) {
	s.learnings = append(s.learnings, l)
	s.byID[l.ID] = l

	s.entities = append(s.entities, graph.Entity{
		Name:       l.ID,
		EntityType: "learning:" + string(l.Type),
		Observations: []string{
			l.Insight,
			"context: " + l.Context,
			fmt.Sprintf("effectiveness: %.2f", l.EffectivenessScore),
		},
	})
	if l.SessionID != "" {
		s.relations = append(s.relations, graph.Relation{From: l.ID, To: "session:" + l.SessionID, RelationType: graph.RelLearnedIn})
	}
	for _, w := range l.RelatedWebsiteIDs {
		s.relations = append(s.relations, graph.Relation{From: l.ID, To: "website:" + w, RelationType: graph.RelDerivedFrom})
	}
}

func (s *Store) newLearning(t Type, sessionID, websiteID, context, insight string, eff float64) *Learning {
	now := s.now().UTC()
	l := &Learning{
		ID:                 newID(),
		Type:               t,
		Context:            context,
		Insight:            insight,
		EffectivenessScore: eff,
		SessionID:          sessionID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if websiteID != "" {
		l.RelatedWebsiteIDs = []string{websiteID}
	}
	return l
}

// LearnFromResult derives learnings from one attempt: one per category below
// the quality threshold, one per (errorType, step) failure group, and a
// success pattern when the attempt met the threshold.
func (s *Store) LearnFromResult(o Outcome) []Learning {
	var created []*Learning

	for _, c := range scoring.Categories {
		v := o.Score.Categories[c]
		if v >= s.qualityThreshold {
			continue
		}
		created = append(created, s.newLearning(Improvement, o.SessionID, o.WebsiteID,
			"category:"+string(c),
			fmt.Sprintf("%s scored %.1f (threshold %.1f) on %s/%s; strengthen %s", c, v, s.qualityThreshold, o.Template, o.Industry, c),
			initialEffectiveness))
	}

	for _, g := range groupFailures(o.Failures) {
		l := s.newLearning(FailurePattern, o.SessionID, o.WebsiteID,
			fmt.Sprintf("%s:%s", g.errorType, g.step),
			fmt.Sprintf("%d %s failure(s) at %s (targets: %s)", g.count, g.errorType, g.step, strings.Join(g.targets, ", ")),
			initialEffectiveness)
		l.Occurrences = g.count
		created = append(created, l)

		if g.errorType == engine.ErrorTimeout {
			opt := s.newLearning(CommandOptimization, o.SessionID, o.WebsiteID,
				fmt.Sprintf("%s:%s", g.errorType, g.step),
				fmt.Sprintf("increase wait time for %s after %d timeout(s)", g.step, g.count),
				initialEffectiveness)
			opt.Occurrences = g.count
			created = append(created, opt)
		}
	}

	if o.Score.OverallScore >= s.qualityThreshold {
		created = append(created, s.newLearning(SuccessPattern, o.SessionID, o.WebsiteID,
			fmt.Sprintf("template:%s:industry:%s", o.Template, o.Industry),
			fmt.Sprintf("%s template worked for %s (%.1f/10, %d commands)", o.Template, o.Industry, o.Score.OverallScore, o.CommandsExecuted),
			o.Score.OverallScore/10))
	}

	s.mu.Lock()
	s.entities = append(s.entities, graph.Entity{
		Name:       "website:" + o.WebsiteID,
		EntityType: "website",
		Observations: []string{
			"industry: " + o.Industry,
			"template: " + o.Template,
			fmt.Sprintf("score: %.2f (%s)", o.Score.OverallScore, o.Score.Verdict),
		},
	})
	out := make([]Learning, 0, len(created))
	for _, l := range created {
		s.add(l)
		out = append(out, *l)
	}
	s.mu.Unlock()

	s.logf("website %s: %d new learnings", o.WebsiteID, len(out))
	return out
}

type failureGroup struct {
	errorType engine.ErrorType
	step      string
	count     int
	targets   []string
}

// groupFailures groups by (errorType, step), preserving first-seen order.
func groupFailures(failures []engine.FailureEntry) []*failureGroup {
	var order []*failureGroup
	idx := make(map[string]*failureGroup)
	for _, f := range failures {
		key := string(f.ErrorType) + "|" + f.Step
		g, ok := idx[key]
		if !ok {
			g = &failureGroup{errorType: f.ErrorType, step: f.Step}
			idx[key] = g
			order = append(order, g)
		}
		g.count++
		if sc, ok := f.Context.(engine.SelectorContext); ok && sc.Target != "" {
			g.targets = appendUnique(g.targets, sc.Target)
		} else if f.CommandID != "" {
			g.targets = appendUnique(g.targets, f.CommandID)
		}
	}
	return order
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// StagedEntities returns a copy of the staged graph entities.
func (s *Store) StagedEntities() []graph.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]graph.Entity(nil), s.entities...)
}

// StagedRelations returns a copy of the staged graph relations.
func (s *Store) StagedRelations() []graph.Relation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]graph.Relation(nil), s.relations...)
}

// ClearStaged drops staged graph records after they were persisted.
func (s *Store) ClearStaged() {
	s.mu.Lock()
	s.entities = nil
	s.relations = nil
	s.mu.Unlock()
}

// Suggestions aggregates failure patterns by context (two or more
// occurrences yield a suggestion) and promotes strong success patterns.
// Results are ordered by expected impact.
func (s *Store) Suggestions() []Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	var contexts []string
	for _, l := range s.learnings {
		if l.Type != FailurePattern {
			continue
		}
		if counts[l.Context] == 0 {
			contexts = append(contexts, l.Context)
		}
		counts[l.Context]++
	}

	var out []Suggestion
	for _, ctx := range contexts {
		n := counts[ctx]
		if n < 2 {
			continue
		}
		out = append(out, Suggestion{
			Type:           SuggestFixFailure,
			Context:        ctx,
			Description:    fmt.Sprintf("%s failed in %d attempts; adjust selectors, waits or retries for this step", ctx, n),
			ExpectedImpact: min(0.2+0.1*float64(n), 0.9),
			Confidence:     min(0.5+0.1*float64(n), 0.95),
			Occurrences:    n,
		})
	}

	for _, l := range s.learnings {
		if l.Type != SuccessPattern || l.EffectivenessScore <= 0.8 {
			continue
		}
		out = append(out, Suggestion{
			Type:           SuggestReuseTemplate,
			Context:        l.Context,
			Description:    "reuse " + l.Context + ": " + l.Insight,
			ExpectedImpact: l.EffectivenessScore,
			Confidence:     l.EffectivenessScore,
			Occurrences:    1,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpectedImpact > out[j].ExpectedImpact
	})
	return out
}

// Apply returns a modified copy of cmds and the ids of learnings applied.
// Only learnings at or above the activation threshold take part. Wait-time
// optimizations scale click and submit timeouts by 1.5 once per call;
// failure patterns whose context ends in a command's action add one retry
// (capped at 5). Each applied learning's AppliedCount grows by exactly one.
func (s *Store) Apply(cmds []command.Command) ([]command.Command, []string) {
	out := make([]command.Command, len(cmds))
	copy(out, cmds)

	s.mu.Lock()
	defer s.mu.Unlock()

	applied := make(map[string]bool)

	var waitLearnings []*Learning
	byAction := make(map[command.Action][]*Learning)
	for _, l := range s.learnings {
		if l.EffectivenessScore < s.activation {
			continue
		}
		switch l.Type {
		case CommandOptimization:
			if strings.Contains(strings.ToLower(l.Insight), waitTimeMarker) {
				waitLearnings = append(waitLearnings, l)
			}
		case FailurePattern:
			a := command.Action(trailingToken(l.Context))
			byAction[a] = append(byAction[a], l)
		}
	}

	if len(waitLearnings) > 0 {
		scaled := false
		for i := range out {
			if out[i].Action == command.ActionClick || out[i].Action == command.ActionSubmit {
				out[i].Timeout = time.Duration(float64(out[i].Timeout) * timeoutScale)
				scaled = true
			}
		}
		if scaled {
			for _, l := range waitLearnings {
				applied[l.ID] = true
			}
		}
	}

	for i := range out {
		ls := byAction[out[i].Action]
		if len(ls) == 0 {
			continue
		}
		out[i].Retries = min(out[i].Retries+1, maxRetryBudget)
		for _, l := range ls {
			applied[l.ID] = true
		}
	}

	now := s.now().UTC()
	var ids []string
	for _, l := range s.learnings {
		if applied[l.ID] {
			l.AppliedCount++
			l.UpdatedAt = now
			ids = append(ids, l.ID)
		}
	}
	if len(ids) > 0 {
		s.logf("applied %d learnings to %d commands", len(ids), len(out))
	}
	return out, ids
}

func trailingToken(context string) string {
	if i := strings.LastIndex(context, ":"); i >= 0 {
		return context[i+1:]
	}
	return context
}

// UpdateEffectiveness folds sample into the learning's running average.
// The denominator is the number of samples seen so far, so after k updates
// the score is the mean of the k samples. The orchestrator sends one sample
// per id returned by Apply, which keeps SampleCount equal to AppliedCount;
// the two are stored apart so imported learnings carry their own history.
func (s *Store) UpdateEffectiveness(id string, sample float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sample = min(max(sample, 0), 1)
	n := float64(l.SampleCount)
	l.EffectivenessScore = (l.EffectivenessScore*n + sample) / (n + 1)
	l.SampleCount++
	l.UpdatedAt = s.now().UTC()
	return nil
}

// Get returns a copy of one learning.
func (s *Store) Get(id string) (Learning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byID[id]
	if !ok {
		return Learning{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *l, nil
}

// All returns copies of every learning in insertion order.
func (s *Store) All() []Learning {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Learning, 0, len(s.learnings))
	for _, l := range s.learnings {
		out = append(out, *l)
	}
	return out
}

// Len returns the number of stored learnings.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.learnings)
}

// Top returns up to n learnings ordered by effectiveness, then applied count.
func (s *Store) Top(n int) []Learning {
	all := s.All()
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].EffectivenessScore != all[j].EffectivenessScore {
			return all[i].EffectivenessScore > all[j].EffectivenessScore
		}
		return all[i].AppliedCount > all[j].AppliedCount
	})
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// Prune drops learnings with at least minSamples samples whose effectiveness
// is below minEffectiveness. It returns how many were removed.
func (s *Store) Prune(minEffectiveness float64, minSamples int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.learnings[:0]
	removed := 0
	for _, l := range s.learnings {
		if l.SampleCount >= minSamples && l.EffectivenessScore < minEffectiveness {
			delete(s.byID, l.ID)
			removed++
			continue
		}
		kept = append(kept, l)
	}
	for i := len(kept); i < len(s.learnings); i++ {
		s.learnings[i] = nil
	}
	s.learnings = kept
	return removed
}
