package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nathan8299/foxbox/pkg/taxonomy"
)

// TagDB is the slice of pgx the tag store needs; *pgxpool.Pool
// satisfies it, and tests substitute a fake.
type TagDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresTagStore persists taxonomy tag mutations so tags survive
// gateway restarts. It implements taxonomy.TagStore.
type PostgresTagStore struct {
	db TagDB
}

func NewPostgresTagStore(db TagDB) *PostgresTagStore {
	return &PostgresTagStore{db: db}
}

func (s *PostgresTagStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS taxonomy_tags (
		kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (kind, entity_id, tag)
	)`)
	return err
}

func (s *PostgresTagStore) AddTags(ctx context.Context, kind, entity string, tags []taxonomy.TagID) error {
	for _, tag := range tags {
		_, err := s.db.Exec(ctx,
			`INSERT INTO taxonomy_tags (kind, entity_id, tag) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			kind, entity, string(tag))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresTagStore) RemoveTags(ctx context.Context, kind, entity string, tags []taxonomy.TagID) error {
	raw := make([]string, 0, len(tags))
	for _, tag := range tags {
		raw = append(raw, string(tag))
	}
	_, err := s.db.Exec(ctx,
		`DELETE FROM taxonomy_tags WHERE kind=$1 AND entity_id=$2 AND tag = ANY($3)`,
		kind, entity, raw)
	return err
}

func (s *PostgresTagStore) Load(ctx context.Context, kind string) (map[string][]taxonomy.TagID, error) {
	rows, err := s.db.Query(ctx,
		`SELECT entity_id, tag FROM taxonomy_tags WHERE kind=$1 ORDER BY entity_id, tag`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]taxonomy.TagID{}
	for rows.Next() {
		var entity, tag string
		if err := rows.Scan(&entity, &tag); err != nil {
			return nil, err
		}
		out[entity] = append(out[entity], taxonomy.TagID(tag))
	}
	return out, rows.Err()
}
