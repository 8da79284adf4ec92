package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/pressbrief/pressbrief/internal/model"
)

type dbCluster struct {
	ID           string         `db:"id"`
	Label        string         `db:"label"`
	Keywords     pq.StringArray `db:"keywords"`
	Status       string         `db:"status"`
	SourceCount  int            `db:"source_count"`
	ArticleCount int            `db:"article_count"`
	PeakVelocity float64        `db:"peak_velocity"`
	LastUpdated  time.Time      `db:"last_updated"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (c dbCluster) toModel() *model.StoryCluster {
	return &model.StoryCluster{
		ID:           c.ID,
		Label:        c.Label,
		Keywords:     c.Keywords,
		Status:       model.ClusterStatus(c.Status),
		SourceCount:  c.SourceCount,
		ArticleCount: c.ArticleCount,
		PeakVelocity: c.PeakVelocity,
		LastUpdated:  c.LastUpdated,
		CreatedAt:    c.CreatedAt,
	}
}

// CreateCluster inserts a cluster and claims its member articles in one
// transaction.
func (s *Store) CreateCluster(ctx context.Context, c *model.StoryCluster) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create cluster: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO clusters
			(id, label, keywords, status, source_count, article_count,
			 peak_velocity, last_updated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Label, pq.StringArray(c.Keywords), string(c.Status),
		c.SourceCount, c.ArticleCount, c.PeakVelocity, c.LastUpdated, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cluster: %w", err)
	}

	for i := range c.Articles {
		_, err := tx.ExecContext(ctx,
			`UPDATE articles SET cluster_id = $1 WHERE id = $2`, c.ID, c.Articles[i].ID)
		if err != nil {
			return fmt.Errorf("claim article %s: %w", c.Articles[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create cluster: %w", err)
	}
	return nil
}

// SaveCluster persists a cluster's mutable fields. Membership is managed
// through AttachArticle and MergeClusters, not here.
func (s *Store) SaveCluster(ctx context.Context, c *model.StoryCluster) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE clusters SET
			label = $2, keywords = $3, status = $4, source_count = $5,
			article_count = $6, peak_velocity = $7, last_updated = $8
		WHERE id = $1`,
		c.ID, c.Label, pq.StringArray(c.Keywords), string(c.Status),
		c.SourceCount, c.ArticleCount, c.PeakVelocity, c.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("save cluster %s: %w", c.ID, err)
	}
	return nil
}

// ClusterByID returns a cluster with its members, or nil when absent.
func (s *Store) ClusterByID(ctx context.Context, id string) (*model.StoryCluster, error) {
	var row dbCluster
	err := s.db.GetContext(ctx, &row, `SELECT * FROM clusters WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cluster %s: %w", id, err)
	}

	clusters, err := s.attachMembers(ctx, []*model.StoryCluster{row.toModel()})
	if err != nil {
		return nil, err
	}
	return clusters[0], nil
}

// ActiveClusters returns every active cluster with members, newest first.
func (s *Store) ActiveClusters(ctx context.Context) ([]*model.StoryCluster, error) {
	return s.selectClusters(ctx, `
		SELECT * FROM clusters
		WHERE status = 'ACTIVE'
		ORDER BY created_at DESC`)
}

// TrendingClusters returns active clusters with at least minSources distinct
// sources, ordered by peak velocity descending, at most limit.
func (s *Store) TrendingClusters(ctx context.Context, minSources, limit int) ([]*model.StoryCluster, error) {
	return s.selectClusters(ctx, `
		SELECT * FROM clusters
		WHERE status = 'ACTIVE' AND source_count >= $1
		ORDER BY peak_velocity DESC
		LIMIT $2`, minSources, limit)
}

// UnsentActiveClusters returns active clusters without a SENT curation record
// for the given user.
func (s *Store) UnsentActiveClusters(ctx context.Context, user string) ([]*model.StoryCluster, error) {
	return s.selectClusters(ctx, `
		SELECT * FROM clusters
		WHERE status = 'ACTIVE'
		AND id NOT IN (
			SELECT cluster_id FROM curations
			WHERE user_name = $1 AND status = 'SENT'
		)
		ORDER BY created_at DESC`, user)
}

// ClustersSince returns clusters created at or after the given instant,
// regardless of status, newest first.
func (s *Store) ClustersSince(ctx context.Context, since time.Time) ([]*model.StoryCluster, error) {
	return s.selectClusters(ctx, `
		SELECT * FROM clusters
		WHERE created_at >= $1
		ORDER BY created_at DESC`, since)
}

// MarkClustersStale transitions active clusters last updated before the
// cutoff to STALE. Returns the number transitioned.
func (s *Store) MarkClustersStale(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE clusters SET status = 'STALE'
		WHERE status = 'ACTIVE' AND last_updated < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("mark clusters stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark clusters stale: %w", err)
	}
	return int(n), nil
}

// MergeClusters moves every article and curation record of one cluster into
// another and deletes the absorbed cluster, in one transaction.
func (s *Store) MergeClusters(ctx context.Context, intoID, fromID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE articles SET cluster_id = $1 WHERE cluster_id = $2`, intoID, fromID); err != nil {
		return fmt.Errorf("move articles: %w", err)
	}

	// Re-point curation records unless the user already has one for the
	// surviving cluster, then drop the leftovers with the absorbed cluster.
	if _, err := tx.ExecContext(ctx, `
		UPDATE curations SET cluster_id = $1
		WHERE cluster_id = $2
		AND user_name NOT IN (
			SELECT user_name FROM curations WHERE cluster_id = $1
		)`, intoID, fromID); err != nil {
		return fmt.Errorf("move curations: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM curations WHERE cluster_id = $1`, fromID); err != nil {
		return fmt.Errorf("drop leftover curations: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM clusters WHERE id = $1`, fromID); err != nil {
		return fmt.Errorf("delete absorbed cluster: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

func (s *Store) selectClusters(ctx context.Context, query string, args ...any) ([]*model.StoryCluster, error) {
	var rows []dbCluster
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("load clusters: %w", err)
	}

	clusters := lo.Map(rows, func(row dbCluster, _ int) *model.StoryCluster {
		return row.toModel()
	})
	return s.attachMembers(ctx, clusters)
}

func (s *Store) attachMembers(ctx context.Context, clusters []*model.StoryCluster) ([]*model.StoryCluster, error) {
	if len(clusters) == 0 {
		return clusters, nil
	}

	ids := lo.Map(clusters, func(c *model.StoryCluster, _ int) string { return c.ID })
	members, err := s.membersByCluster(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range clusters {
		c.Articles = members[c.ID]
	}
	return clusters, nil
}
