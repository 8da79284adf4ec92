// Package store is the Postgres persistence layer: articles, clusters,
// per-user curation state, and the breaking-alert log.
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Store wraps a Postgres connection pool. One Store is shared by every
// component; per-consumer interfaces are declared where they are used.
type Store struct {
	db  *sqlx.DB
	log *zap.SugaredLogger
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, log *zap.SugaredLogger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS clusters (
		id            TEXT PRIMARY KEY,
		label         TEXT NOT NULL,
		keywords      TEXT[] NOT NULL DEFAULT '{}',
		status        TEXT NOT NULL DEFAULT 'ACTIVE',
		source_count  INTEGER NOT NULL DEFAULT 0,
		article_count INTEGER NOT NULL DEFAULT 0,
		peak_velocity DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_updated  TIMESTAMPTZ NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS clusters_status_velocity
		ON clusters (status, peak_velocity DESC)`,

	`CREATE TABLE IF NOT EXISTS articles (
		id           TEXT PRIMARY KEY,
		url          TEXT NOT NULL UNIQUE,
		title        TEXT NOT NULL,
		summary      TEXT NOT NULL DEFAULT '',
		content      TEXT NOT NULL DEFAULT '',
		author       TEXT NOT NULL DEFAULT '',
		source       TEXT NOT NULL,
		source_url   TEXT NOT NULL DEFAULT '',
		published_at TIMESTAMPTZ NOT NULL,
		image_url    TEXT NOT NULL DEFAULT '',
		base_score   INTEGER NOT NULL DEFAULT 0,
		entities     JSONB,
		cluster_id   TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS articles_cluster ON articles (cluster_id)`,

	`CREATE TABLE IF NOT EXISTS curations (
		user_name  TEXT NOT NULL,
		cluster_id TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'PENDING',
		edition    TEXT NOT NULL DEFAULT '',
		sent_at    TIMESTAMPTZ,
		PRIMARY KEY (user_name, cluster_id)
	)`,

	`CREATE TABLE IF NOT EXISTS breaking_alerts (
		id          TEXT PRIMARY KEY,
		user_name   TEXT NOT NULL,
		cluster_id  TEXT NOT NULL,
		headline    TEXT NOT NULL,
		analysis    TEXT NOT NULL DEFAULT '',
		article_ids TEXT[] NOT NULL DEFAULT '{}',
		sent_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS breaking_alerts_user_sent
		ON breaking_alerts (user_name, sent_at)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
