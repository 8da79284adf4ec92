package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pressbrief/pressbrief/internal/model"
)

type dbCuration struct {
	User      string       `db:"user_name"`
	ClusterID string       `db:"cluster_id"`
	Status    string       `db:"status"`
	Edition   string       `db:"edition"`
	SentAt    sql.NullTime `db:"sent_at"`
}

// MarkSent records the given clusters as sent to a user in the named edition.
// A cluster with no record is implicitly PENDING, so rows are created on
// first send; the transition to SENT happens at most once per pair.
func (s *Store) MarkSent(ctx context.Context, user string, clusterIDs []string, edition string, sentAt time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark sent: %w", err)
	}
	defer tx.Rollback()

	for _, clusterID := range clusterIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO curations (user_name, cluster_id, status, edition, sent_at)
			VALUES ($1, $2, 'SENT', $3, $4)
			ON CONFLICT (user_name, cluster_id) DO UPDATE
				SET status = 'SENT', edition = $3, sent_at = $4
				WHERE curations.status <> 'SENT'`,
			user, clusterID, edition, sentAt,
		)
		if err != nil {
			return fmt.Errorf("mark cluster %s sent: %w", clusterID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark sent: %w", err)
	}
	return nil
}

// CurationsForUser returns a user's curation records, most recently sent
// first with pending records last.
func (s *Store) CurationsForUser(ctx context.Context, user string) ([]model.UserCuration, error) {
	var rows []dbCuration
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM curations
		WHERE user_name = $1
		ORDER BY sent_at DESC NULLS LAST`, user)
	if err != nil {
		return nil, fmt.Errorf("load curations for %s: %w", user, err)
	}

	out := make([]model.UserCuration, 0, len(rows))
	for _, row := range rows {
		c := model.UserCuration{
			User:      row.User,
			ClusterID: row.ClusterID,
			Status:    model.CurationStatus(row.Status),
			Edition:   row.Edition,
		}
		if row.SentAt.Valid {
			t := row.SentAt.Time
			c.SentAt = &t
		}
		out = append(out, c)
	}
	return out, nil
}
