// Package pipeline wires the curation, digest, and breaking flows together.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pressbrief/pressbrief/internal/cluster"
	"github.com/pressbrief/pressbrief/internal/feed"
	"github.com/pressbrief/pressbrief/internal/model"
	"github.com/pressbrief/pressbrief/internal/score"
)

// Embedder generates one embedding per input text, in input order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// CurateStore is the persistence the curation cycle needs beyond what the
// cluster engine already owns.
type CurateStore interface {
	InsertArticle(ctx context.Context, a *model.Article) (bool, error)
	UnclusteredArticles(ctx context.Context, limit int) ([]*model.Article, error)
}

// CurateReport summarizes one curation cycle.
type CurateReport struct {
	Fetched     int
	New         int
	Clustered   int
	Refreshed   int
	Merged      int
	MarkedStale int
}

// Curator runs the periodic ingestion cycle: fetch, dedupe, score, embed,
// cluster, refresh, merge, mark stale.
type Curator struct {
	feed     feed.Fetcher
	store    CurateStore
	embedder Embedder
	clusters *cluster.Engine
	scorer   *score.Engine
	log      *zap.SugaredLogger
}

func NewCurator(f feed.Fetcher, store CurateStore, embedder Embedder, clusters *cluster.Engine, scorer *score.Engine, log *zap.SugaredLogger) *Curator {
	return &Curator{
		feed:     f,
		store:    store,
		embedder: embedder,
		clusters: clusters,
		scorer:   scorer,
		log:      log,
	}
}

// Curate runs one cycle against a single snapshot of now, so velocity and
// staleness decisions are internally consistent. A provider failure aborts
// the whole cycle; dedup by URL makes the retry safe.
func (c *Curator) Curate(ctx context.Context, now time.Time) (*CurateReport, error) {
	report := &CurateReport{}

	raw, err := c.feed.FetchUnread(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch articles: %v", ErrTransientProvider, err)
	}
	report.Fetched = len(raw)

	fresh, err := c.ingest(ctx, raw, now)
	if err != nil {
		return nil, err
	}
	report.New = len(fresh)
	c.log.Infow("ingested articles", "fetched", report.Fetched, "new", report.New)

	if len(fresh) > 0 {
		clustered, err := c.clusterBatch(ctx, fresh, now)
		if err != nil {
			return nil, err
		}
		report.Clustered = clustered
	}

	refreshed, err := c.clusters.RefreshAll(ctx, now)
	if err != nil {
		return nil, err
	}
	report.Refreshed = refreshed

	merged, err := c.clusters.MergeRelated(ctx, now)
	if err != nil {
		return nil, err
	}
	report.Merged = merged

	stale, err := c.clusters.MarkStale(ctx, now)
	if err != nil {
		return nil, err
	}
	report.MarkedStale = stale

	c.log.Infow("curation cycle complete",
		"clustered", report.Clustered, "refreshed", report.Refreshed,
		"merged", report.Merged, "stale", report.MarkedStale)
	return report, nil
}

// ingest dedupes the batch by URL in fetch order, scores and persists the
// survivors, and returns the articles that were actually new.
func (c *Curator) ingest(ctx context.Context, raw []model.RawArticle, now time.Time) ([]*model.Article, error) {
	seen := make(map[string]struct{}, len(raw))
	var fresh []*model.Article

	for i := range raw {
		r := &raw[i]
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}

		article := &model.Article{
			ID:          uuid.NewString(),
			URL:         r.URL,
			Title:       r.Title,
			Summary:     r.Summary,
			Content:     r.Content,
			Author:      r.Author,
			Source:      r.Source,
			SourceURL:   r.SourceURL,
			PublishedAt: r.PublishedAt,
			ImageURL:    r.ImageURL,
			BaseScore:   c.scorer.ScoreArticle(*r, now),
			Entities:    cluster.ExtractEntities(r.Title),
			CreatedAt:   now,
		}

		inserted, err := c.store.InsertArticle(ctx, article)
		if err != nil {
			return nil, fmt.Errorf("persist article %s: %w", r.URL, err)
		}
		if inserted {
			fresh = append(fresh, article)
		}
	}
	return fresh, nil
}

// clusterBatch embeds the batch in one stable order and assigns each article.
// An embedding failure aborts before any article of the batch is clustered.
func (c *Curator) clusterBatch(ctx context.Context, articles []*model.Article, now time.Time) (int, error) {
	texts := make([]string, len(articles))
	for i, a := range articles {
		texts[i] = a.EmbeddingText()
	}

	embeddings, err := c.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: embed batch: %v", ErrTransientProvider, err)
	}
	if len(embeddings) != len(articles) {
		return 0, fmt.Errorf("%w: got %d embeddings for %d articles",
			ErrDataInconsistency, len(embeddings), len(articles))
	}

	for i, a := range articles {
		if err := c.clusters.Assign(ctx, a, embeddings[i], now); err != nil {
			return i, fmt.Errorf("assign article %s: %w", a.ID, err)
		}
	}
	return len(articles), nil
}

// Backfill re-clusters stored articles that have no owning cluster, in
// batches of limit. Used to recover from an interrupted cycle.
func (c *Curator) Backfill(ctx context.Context, limit int, now time.Time) (int, error) {
	articles, err := c.store.UnclusteredArticles(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(articles) == 0 {
		return 0, nil
	}

	clustered, err := c.clusterBatch(ctx, articles, now)
	if err != nil {
		return clustered, err
	}
	if _, err := c.clusters.RefreshAll(ctx, now); err != nil {
		return clustered, err
	}
	c.log.Infow("backfilled unclustered articles", "count", clustered)
	return clustered, nil
}
