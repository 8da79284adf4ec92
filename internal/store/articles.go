package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/pressbrief/pressbrief/internal/model"
)

// dbArticle maps an article row. Entities are stored as JSONB and the
// nullable cluster_id is empty string in the domain model.
type dbArticle struct {
	ID          string         `db:"id"`
	URL         string         `db:"url"`
	Title       string         `db:"title"`
	Summary     string         `db:"summary"`
	Content     string         `db:"content"`
	Author      string         `db:"author"`
	Source      string         `db:"source"`
	SourceURL   string         `db:"source_url"`
	PublishedAt time.Time      `db:"published_at"`
	ImageURL    string         `db:"image_url"`
	BaseScore   int            `db:"base_score"`
	Entities    []byte         `db:"entities"`
	ClusterID   sql.NullString `db:"cluster_id"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (a dbArticle) toModel() (model.Article, error) {
	out := model.Article{
		ID:          a.ID,
		URL:         a.URL,
		Title:       a.Title,
		Summary:     a.Summary,
		Content:     a.Content,
		Author:      a.Author,
		Source:      a.Source,
		SourceURL:   a.SourceURL,
		PublishedAt: a.PublishedAt,
		ImageURL:    a.ImageURL,
		BaseScore:   a.BaseScore,
		ClusterID:   a.ClusterID.String,
		CreatedAt:   a.CreatedAt,
	}
	if len(a.Entities) > 0 {
		var entities model.Entities
		if err := json.Unmarshal(a.Entities, &entities); err != nil {
			return model.Article{}, fmt.Errorf("decode entities for article %s: %w", a.ID, err)
		}
		out.Entities = &entities
	}
	return out, nil
}

// InsertArticle stores an article, skipping URLs already seen. Returns true
// when a row was inserted.
func (s *Store) InsertArticle(ctx context.Context, a *model.Article) (bool, error) {
	var entities []byte
	if a.Entities != nil {
		var err error
		entities, err = json.Marshal(a.Entities)
		if err != nil {
			return false, fmt.Errorf("encode entities: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO articles
			(id, url, title, summary, content, author, source, source_url,
			 published_at, image_url, base_score, entities, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (url) DO NOTHING`,
		a.ID, a.URL, a.Title, a.Summary, a.Content, a.Author, a.Source,
		a.SourceURL, a.PublishedAt, a.ImageURL, a.BaseScore, entities, a.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	return n > 0, nil
}

// ArticleByID returns the article or nil when no such row exists.
func (s *Store) ArticleByID(ctx context.Context, id string) (*model.Article, error) {
	var row dbArticle
	err := s.db.GetContext(ctx, &row, `SELECT * FROM articles WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load article %s: %w", id, err)
	}

	a, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AttachArticle assigns an article to a cluster.
func (s *Store) AttachArticle(ctx context.Context, clusterID, articleID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET cluster_id = $1 WHERE id = $2`, clusterID, articleID)
	if err != nil {
		return fmt.Errorf("attach article %s: %w", articleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach article %s: %w", articleID, err)
	}
	if n == 0 {
		return fmt.Errorf("attach article %s: no such article", articleID)
	}
	return nil
}

// UnclusteredArticles returns stored articles with no owning cluster, oldest
// first, at most limit.
func (s *Store) UnclusteredArticles(ctx context.Context, limit int) ([]*model.Article, error) {
	var rows []dbArticle
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM articles
		WHERE cluster_id IS NULL
		ORDER BY published_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load unclustered articles: %w", err)
	}
	return toModelArticles(rows)
}

// CountArticles returns the number of stored articles.
func (s *Store) CountArticles(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT count(*) FROM articles`); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return count, nil
}

func toModelArticles(rows []dbArticle) ([]*model.Article, error) {
	out := make([]*model.Article, 0, len(rows))
	for _, row := range rows {
		a, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, nil
}

// membersByCluster loads the member articles of the given clusters in one
// query and groups them by owning cluster.
func (s *Store) membersByCluster(ctx context.Context, clusterIDs []string) (map[string][]model.Article, error) {
	if len(clusterIDs) == 0 {
		return map[string][]model.Article{}, nil
	}

	query, args, err := sqlx.In(
		`SELECT * FROM articles WHERE cluster_id IN (?) ORDER BY published_at ASC`, clusterIDs)
	if err != nil {
		return nil, fmt.Errorf("build members query: %w", err)
	}

	var rows []dbArticle
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load cluster members: %w", err)
	}

	grouped := lo.GroupBy(rows, func(a dbArticle) string { return a.ClusterID.String })
	out := make(map[string][]model.Article, len(grouped))
	for clusterID, members := range grouped {
		converted := make([]model.Article, 0, len(members))
		for _, row := range members {
			a, err := row.toModel()
			if err != nil {
				return nil, err
			}
			converted = append(converted, a)
		}
		out[clusterID] = converted
	}
	return out, nil
}
