// Package graph holds the entity/relation records staged by the learning
// store and the sinks that drain them at session end.
package graph

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/lucasnoah/sitefactory/internal/fileutil"
)

// Entity is one node for the external knowledge graph.
type Entity struct {
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations"`
}

// Relation links two entities by name.
type Relation struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
}

// Relation types.
const (
	RelLearnedIn   = "learned_in"
	RelDerivedFrom = "derived_from"
)

// Sink persists staged entities and relations.
type Sink interface {
	Write(ctx context.Context, entities []Entity, relations []Relation) error
	Close() error
}

// FileSink appends staged records as JSON lines under a directory.
type FileSink struct {
	dir string
}

// NewFileSink creates a FileSink writing to dir/entities.jsonl and dir/relations.jsonl.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

type stamped[T any] struct {
	Record   T         `json:"record"`
	StagedAt time.Time `json:"staged_at"`
}

// Write implements Sink.
func (f *FileSink) Write(ctx context.Context, entities []Entity, relations []Relation) error {
	now := time.Now().UTC()
	for _, e := range entities {
		if err := fileutil.AppendJSONLine(filepath.Join(f.dir, "entities.jsonl"), stamped[Entity]{Record: e, StagedAt: now}); err != nil {
			return fmt.Errorf("write entity %s: %w", e.Name, err)
		}
	}
	for _, r := range relations {
		if err := fileutil.AppendJSONLine(filepath.Join(f.dir, "relations.jsonl"), stamped[Relation]{Record: r, StagedAt: now}); err != nil {
			return fmt.Errorf("write relation %s->%s: %w", r.From, r.To, err)
		}
	}
	return nil
}

// Close implements Sink.
func (f *FileSink) Close() error { return nil }

// Multi writes to every sink and returns the first error after trying all.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, entities []Entity, relations []Relation) error {
	var first error
	for _, s := range m {
		if err := s.Write(ctx, entities, relations); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close implements Sink.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
