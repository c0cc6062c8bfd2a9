package learning

import (
	"fmt"
)

const (
	highQuality        = 8.0
	moderateQuality    = 6.0
	successRateFloor   = 0.9
	effectiveOutcome   = 0.7
	ineffectiveOutcome = 0.4
)

// Reflect derives session-level insights from score level, the change
// against the previous session, and the command success rate. A success rate
// below 90% also stores a wait-time optimization learning.
func (s *Store) Reflect(in ReflectInput) Reflection {
	var r Reflection

	switch {
	case in.AverageScore >= highQuality:
		r.Insights = append(r.Insights, fmt.Sprintf("Session quality is high (average %.1f/10)", in.AverageScore))
	case in.AverageScore >= moderateQuality:
		r.Insights = append(r.Insights, fmt.Sprintf("Session quality is moderate (average %.1f/10)", in.AverageScore))
	default:
		r.Insights = append(r.Insights, fmt.Sprintf("Session quality is low (average %.1f/10); focus on recurring failure patterns", in.AverageScore))
	}

	if in.PreviousAverage != nil && *in.PreviousAverage > 0 {
		prev := *in.PreviousAverage
		pct := (in.AverageScore - prev) / prev * 100
		switch {
		case in.AverageScore > prev:
			r.Insights = append(r.Insights, fmt.Sprintf("Quality improved by %.1f%% over the previous session", pct))
		case in.AverageScore < prev:
			r.Insights = append(r.Insights, fmt.Sprintf("Quality declined by %.1f%% from the previous session", -pct))
		default:
			r.Insights = append(r.Insights, "Quality unchanged from the previous session")
		}
	}

	if in.CommandSuccessRate < successRateFloor {
		r.Suggestions = append(r.Suggestions, fmt.Sprintf(
			"Command success rate %.0f%% is below %.0f%%; review failing selectors and timeouts",
			in.CommandSuccessRate*100, successRateFloor*100))

		l := s.newLearning(CommandOptimization, in.SessionID, "",
			"session:"+in.SessionID+":success_rate",
			fmt.Sprintf("increase wait time before interactions; command success rate was %.0f%%", in.CommandSuccessRate*100),
			initialEffectiveness)
		s.mu.Lock()
		s.add(l)
		s.mu.Unlock()
		r.NewLearnings = append(r.NewLearnings, *l)
	}

	for _, l := range in.TopLearnings {
		if l.AppliedCount <= 0 {
			continue
		}
		r.Patterns = append(r.Patterns, Pattern{
			Type:      l.Type,
			Context:   l.Context,
			Frequency: l.AppliedCount,
			Outcome:   outcomeLabel(l.EffectivenessScore),
		})
	}

	s.logf("reflection: %d insights, %d suggestions, %d patterns", len(r.Insights), len(r.Suggestions), len(r.Patterns))
	return r
}

func outcomeLabel(eff float64) string {
	switch {
	case eff >= effectiveOutcome:
		return "effective"
	case eff >= ineffectiveOutcome:
		return "neutral"
	default:
		return "ineffective"
	}
}
