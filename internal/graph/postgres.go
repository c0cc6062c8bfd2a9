package graph

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS graph_entities (
    name         TEXT PRIMARY KEY,
    entity_type  TEXT NOT NULL,
    observations TEXT[] NOT NULL DEFAULT '{}',
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS graph_relations (
    from_name     TEXT NOT NULL,
    to_name       TEXT NOT NULL,
    relation_type TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (from_name, to_name, relation_type)
);
`

// PostgresSink upserts staged records into Postgres.
type PostgresSink struct {
	conn *pgx.Conn
}

// OpenPostgres connects and ensures the graph tables exist.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect graph db: %w", err)
	}
	if _, err := conn.Exec(ctx, postgresSchema); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("create graph schema: %w", err)
	}
	return &PostgresSink{conn: conn}, nil
}

// Write implements Sink. Observations for an existing entity are appended.
func (p *PostgresSink) Write(ctx context.Context, entities []Entity, relations []Relation) error {
	if len(entities) == 0 && len(relations) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entities {
		batch.Queue(`INSERT INTO graph_entities (name, entity_type, observations)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE
			SET observations = graph_entities.observations || EXCLUDED.observations,
			    updated_at = now()`,
			e.Name, e.EntityType, e.Observations)
	}
	for _, r := range relations {
		batch.Queue(`INSERT INTO graph_relations (from_name, to_name, relation_type)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`,
			r.From, r.To, r.RelationType)
	}

	br := p.conn.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("graph batch item %d: %w", i, err)
		}
	}
	return br.Close()
}

// Close implements Sink.
func (p *PostgresSink) Close() error {
	return p.conn.Close(context.Background())
}
