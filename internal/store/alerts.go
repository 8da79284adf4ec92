package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/pressbrief/pressbrief/internal/model"
)

type dbAlert struct {
	ID         string         `db:"id"`
	User       string         `db:"user_name"`
	ClusterID  string         `db:"cluster_id"`
	Headline   string         `db:"headline"`
	Analysis   string         `db:"analysis"`
	ArticleIDs pq.StringArray `db:"article_ids"`
	SentAt     time.Time      `db:"sent_at"`
}

// AppendAlert records a delivered breaking alert. The log is append-only.
func (s *Store) AppendAlert(ctx context.Context, a *model.BreakingAlert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO breaking_alerts
			(id, user_name, cluster_id, headline, analysis, article_ids, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.User, a.ClusterID, a.Headline, a.Analysis,
		pq.StringArray(a.ArticleIDs), a.SentAt,
	)
	if err != nil {
		return fmt.Errorf("append breaking alert: %w", err)
	}
	return nil
}

// CountAlertsSince counts alerts recorded for a user at or after the given
// instant. The daily cap is enforced against this count.
func (s *Store) CountAlertsSince(ctx context.Context, user string, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT count(*) FROM breaking_alerts
		WHERE user_name = $1 AND sent_at >= $2`, user, since)
	if err != nil {
		return 0, fmt.Errorf("count breaking alerts for %s: %w", user, err)
	}
	return count, nil
}

// AlertedClusterIDsSince returns the clusters a user has already been alerted
// about since the given instant, so one story does not alert twice.
func (s *Store) AlertedClusterIDsSince(ctx context.Context, user string, since time.Time) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT cluster_id FROM breaking_alerts
		WHERE user_name = $1 AND sent_at >= $2`, user, since)
	if err != nil {
		return nil, fmt.Errorf("load alerted clusters for %s: %w", user, err)
	}
	return ids, nil
}
