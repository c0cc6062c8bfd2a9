package learning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lucasnoah/sitefactory/internal/fileutil"
)

// Export writes every learning to path as a versioned document.
func (s *Store) Export(path string) error {
	doc := Document{
		Version:    DocumentVersion,
		ExportedAt: s.now().UTC(),
		Learnings:  s.All(),
	}
	if err := fileutil.WriteJSON(path, doc); err != nil {
		return fmt.Errorf("export learnings: %w", err)
	}
	return nil
}

// importedLearning tolerates missing fields; pointers tell absent from zero.
type importedLearning struct {
	ID                 string    `json:"id"`
	Type               Type      `json:"type"`
	Context            string    `json:"context"`
	Insight            string    `json:"insight"`
	AppliedCount       int       `json:"appliedCount"`
	EffectivenessScore *float64  `json:"effectivenessScore"`
	SampleCount        int       `json:"sampleCount"`
	Occurrences        int       `json:"occurrences"`
	RelatedWebsiteIDs  []string  `json:"relatedWebsiteIds"`
	SessionID          string    `json:"sessionId"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Import loads learnings from path. It accepts a versioned document or a
// bare array; entries without an id are skipped and missing fields get
// defaults. A missing file imports nothing. Imported ids replace existing ones.
func (s *Store) Import(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read learnings: %w", err)
	}

	var entries []json.RawMessage
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return 0, nil
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return 0, fmt.Errorf("parse learnings %s: %w", path, err)
		}
	default:
		var doc struct {
			Version   int               `json:"version"`
			Learnings []json.RawMessage `json:"learnings"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return 0, fmt.Errorf("parse learnings %s: %w", path, err)
		}
		entries = doc.Learnings
	}

	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, raw := range entries {
		var in importedLearning
		if err := json.Unmarshal(raw, &in); err != nil || in.ID == "" {
			continue
		}
		l := &Learning{
			ID:                 in.ID,
			Type:               in.Type,
			Context:            in.Context,
			Insight:            in.Insight,
			AppliedCount:       max(in.AppliedCount, 0),
			EffectivenessScore: initialEffectiveness,
			SampleCount:        max(in.SampleCount, 0),
			Occurrences:        in.Occurrences,
			RelatedWebsiteIDs:  in.RelatedWebsiteIDs,
			SessionID:          in.SessionID,
			CreatedAt:          in.CreatedAt,
			UpdatedAt:          in.UpdatedAt,
		}
		if l.Type == "" {
			l.Type = Improvement
		}
		if in.EffectivenessScore != nil {
			l.EffectivenessScore = min(max(*in.EffectivenessScore, 0), 1)
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		if l.UpdatedAt.IsZero() {
			l.UpdatedAt = l.CreatedAt
		}

		if old, ok := s.byID[l.ID]; ok {
			*old = *l
		} else {
			s.learnings = append(s.learnings, l)
			s.byID[l.ID] = l
		}
		n++
	}
	s.logf("imported %d learnings from %s", n, path)
	return n, nil
}
