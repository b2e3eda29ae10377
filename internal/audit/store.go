// Package audit records classifications and dataset captures in PostgreSQL.
// The dataset directory stays the source of truth; these tables are a log.
package audit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Classification is one answered classify request.
type Classification struct {
	ClassID    int
	Label      string
	Confidence float64
	Latency    time.Duration
}

// Capture is one stored dataset sample.
type Capture struct {
	Split string
	Label string
	Path  string
	Bytes int
}

// Recorder receives events after a request succeeded. Handlers log and
// ignore recorder errors.
type Recorder interface {
	RecordClassification(ctx context.Context, c Classification) error
	RecordCapture(ctx context.Context, c Capture) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) RecordClassification(context.Context, Classification) error { return nil }
func (Nop) RecordCapture(context.Context, Capture) error               { return nil }

// Store is a Recorder backed by a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database and ensures the schema exists.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to initialize database schema")
	}
	return &Store{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS classifications (
			id BIGSERIAL PRIMARY KEY,
			class_id INT NOT NULL,
			label TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			latency_ms DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS captures (
			id BIGSERIAL PRIMARY KEY,
			split TEXT NOT NULL,
			label TEXT NOT NULL,
			path TEXT NOT NULL UNIQUE,
			size_bytes INT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS captures_split_label_idx ON captures (split, label);
	`)
	return err
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) RecordClassification(ctx context.Context, c Classification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO classifications (class_id, label, confidence, latency_ms)
		VALUES ($1, $2, $3, $4)
	`, c.ClassID, c.Label, c.Confidence, float64(c.Latency.Microseconds())/1000)
	return err
}

func (s *Store) RecordCapture(ctx context.Context, c Capture) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO captures (split, label, path, size_bytes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO NOTHING
	`, c.Split, c.Label, c.Path, c.Bytes)
	return err
}

// LabelCount is the number of classifications answered with one label.
type LabelCount struct {
	Label string
	Count int
}

// ClassificationCounts summarizes classifications since the given time,
// most frequent label first.
func (s *Store) ClassificationCounts(ctx context.Context, since time.Time) ([]LabelCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT label, COUNT(*) FROM classifications
		WHERE created_at >= $1
		GROUP BY label
		ORDER BY COUNT(*) DESC, label ASC
	`, since)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (LabelCount, error) {
		var lc LabelCount
		err := row.Scan(&lc.Label, &lc.Count)
		return lc, err
	})
}

// CaptureCount returns how many captures were recorded for split and label.
func (s *Store) CaptureCount(ctx context.Context, split, label string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM captures WHERE split = $1 AND label = $2", split, label).Scan(&n)
	return n, err
}

// Reset drops the audit tables.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS classifications;
		DROP TABLE IF EXISTS captures;
	`)
	return err
}
