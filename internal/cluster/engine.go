// Package cluster implements incremental online clustering of articles by
// embedding similarity, plus cluster lifecycle management.
package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pressbrief/pressbrief/internal/model"
	"github.com/pressbrief/pressbrief/internal/vectorindex"
)

// candidateK is how many nearest neighbors each similarity query considers.
const candidateK = 5

// velocityWindow is the rolling window for the articles-per-hour velocity.
const velocityWindow = time.Hour

// Store is the slice of persistence the engine needs. A cluster record
// (membership, stats, status) is a single unit of mutual exclusion per
// cluster id; callers must not run engine operations for the same cluster
// concurrently.
type Store interface {
	ArticleByID(ctx context.Context, id string) (*model.Article, error)
	AttachArticle(ctx context.Context, clusterID, articleID string) error
	CreateCluster(ctx context.Context, c *model.StoryCluster) error
	SaveCluster(ctx context.Context, c *model.StoryCluster) error
	ClusterByID(ctx context.Context, id string) (*model.StoryCluster, error)
	ActiveClusters(ctx context.Context) ([]*model.StoryCluster, error)
	MarkClustersStale(ctx context.Context, before time.Time) (int, error)
	MergeClusters(ctx context.Context, intoID, fromID string) error
}

// Engine assigns articles to story clusters and maintains cluster lifecycle
// state.
type Engine struct {
	store Store
	index vectorindex.Index
	cfg   model.ClusteringSettings
	log   *zap.SugaredLogger
}

// NewEngine creates a cluster engine.
func NewEngine(store Store, index vectorindex.Index, cfg model.ClusteringSettings, log *zap.SugaredLogger) *Engine {
	return &Engine{
		store: store,
		index: index,
		cfg:   cfg,
		log:   log,
	}
}

// Assign places one article into a cluster: either the cluster of its
// nearest different-source neighbor above the similarity threshold, or a new
// singleton cluster. Same-source neighbors are ignored — the same story
// retold by one outlet is not corroboration.
//
// Assign is idempotent with respect to index membership: an article that is
// already indexed and clustered is a no-op. An article that is indexed but
// still unclustered (a previous cycle failed between the two steps) is
// re-clustered without re-upserting its vector.
func (e *Engine) Assign(ctx context.Context, article *model.Article, embedding []float32, now time.Time) error {
	exists, err := e.index.Exists(ctx, article.ID)
	if err != nil {
		return fmt.Errorf("check index membership: %w", err)
	}
	if exists && article.ClusterID != "" {
		return nil
	}

	if !exists {
		err := e.index.Upsert(ctx, []vectorindex.ArticleVector{{
			ID:          article.ID,
			Title:       article.Title,
			Source:      article.Source,
			PublishedAt: article.PublishedAt,
			Embedding:   embedding,
		}})
		if err != nil {
			return fmt.Errorf("index article %s: %w", article.ID, err)
		}
	}

	matches, err := e.index.Query(ctx, embedding, candidateK, e.cfg.SimilarityThreshold)
	if err != nil {
		return fmt.Errorf("query similar articles: %w", err)
	}

	for _, m := range matches {
		// Corroboration filter: different outlet, not the article itself
		if m.ID == article.ID || m.Source == article.Source {
			continue
		}

		peer, err := e.store.ArticleByID(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("load matched article %s: %w", m.ID, err)
		}
		if peer == nil || peer.ClusterID == "" {
			// The nearest peer has no cluster yet (it can trail this article
			// within the same batch). Seed a fresh cluster below; the merge
			// pass coalesces the pair once both sides are clustered.
			e.log.Warnw("matched article has no cluster, seeding fresh cluster",
				"article", article.ID, "match", m.ID)
			break
		}

		if err := e.store.AttachArticle(ctx, peer.ClusterID, article.ID); err != nil {
			return fmt.Errorf("attach article to cluster %s: %w", peer.ClusterID, err)
		}
		article.ClusterID = peer.ClusterID
		e.log.Debugw("joined existing cluster",
			"article", article.ID, "cluster", peer.ClusterID, "similarity", m.Similarity)
		return nil
	}

	if article.ClusterID != "" {
		return nil
	}

	c := &model.StoryCluster{
		ID:           uuid.NewString(),
		Label:        article.Title,
		Keywords:     ExtractKeywords(article.Title),
		Status:       model.ClusterActive,
		SourceCount:  1,
		ArticleCount: 1,
		LastUpdated:  now,
		CreatedAt:    now,
		Articles:     []model.Article{*article},
	}
	if err := e.store.CreateCluster(ctx, c); err != nil {
		return fmt.Errorf("create cluster: %w", err)
	}
	article.ClusterID = c.ID
	e.log.Debugw("created new cluster", "article", article.ID, "cluster", c.ID)
	return nil
}

// RefreshStats recomputes a cluster's rolling statistics from its current
// membership: source and article counts, label from the newest member, and
// peak velocity as the max of the current value and the count of members
// published within the trailing hour. Counts are always recomputed, never
// incremented, so an interrupted assignment is corrected here.
func RefreshStats(c *model.StoryCluster, now time.Time) {
	c.SourceCount = len(c.Sources())
	c.ArticleCount = len(c.Articles)

	if latest := c.LatestArticle(); latest != nil {
		c.Label = latest.Title
	}

	cutoff := now.Add(-velocityWindow)
	recent := 0
	for i := range c.Articles {
		if c.Articles[i].PublishedAt.After(cutoff) {
			recent++
		}
	}
	if v := float64(recent); v > c.PeakVelocity {
		c.PeakVelocity = v
	}

	c.LastUpdated = now
}

// RefreshAll reloads every active cluster and persists freshly recomputed
// stats, all against a single now so one pass is internally consistent.
func (e *Engine) RefreshAll(ctx context.Context, now time.Time) (int, error) {
	clusters, err := e.store.ActiveClusters(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active clusters: %w", err)
	}

	for _, c := range clusters {
		RefreshStats(c, now)
		if err := e.store.SaveCluster(ctx, c); err != nil {
			return 0, fmt.Errorf("save cluster %s: %w", c.ID, err)
		}
	}
	return len(clusters), nil
}

// MarkStale transitions every active cluster untouched for longer than the
// configured window to STALE. The transition is one-way; new related
// articles form or join a different active cluster. Returns the number of
// clusters transitioned.
func (e *Engine) MarkStale(ctx context.Context, now time.Time) (int, error) {
	before := now.Add(-time.Duration(e.cfg.StaleAfterHours) * time.Hour)
	count, err := e.store.MarkClustersStale(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("mark stale clusters: %w", err)
	}
	return count, nil
}

// MergeRelated coalesces pairs of active clusters that describe the same
// event: their representative embeddings (the newest member's vector) exceed
// the similarity threshold and their source sets overlap by no more than the
// configured fraction. The younger cluster is absorbed into the older one,
// whose stats are then recomputed. Returns the number of merges performed.
func (e *Engine) MergeRelated(ctx context.Context, now time.Time) (int, error) {
	clusters, err := e.store.ActiveClusters(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active clusters: %w", err)
	}

	byID := make(map[string]*model.StoryCluster, len(clusters))
	for _, c := range clusters {
		byID[c.ID] = c
	}

	merged := make(map[string]bool)
	count := 0

	for _, c := range clusters {
		if merged[c.ID] {
			continue
		}
		rep := c.LatestArticle()
		if rep == nil {
			continue
		}

		vec, err := e.index.Vector(ctx, rep.ID)
		if err != nil {
			return count, fmt.Errorf("load representative vector: %w", err)
		}
		if vec == nil {
			continue
		}

		matches, err := e.index.Query(ctx, vec, candidateK, e.cfg.SimilarityThreshold)
		if err != nil {
			return count, fmt.Errorf("query representative vector: %w", err)
		}

		for _, m := range matches {
			if m.ID == rep.ID {
				continue
			}
			peer, err := e.store.ArticleByID(ctx, m.ID)
			if err != nil {
				return count, fmt.Errorf("load matched article %s: %w", m.ID, err)
			}
			if peer == nil || peer.ClusterID == "" || peer.ClusterID == c.ID {
				continue
			}
			other, ok := byID[peer.ClusterID]
			if !ok || merged[other.ID] {
				continue
			}
			if sourceOverlap(c, other) > e.cfg.MergeSourceOverlapMax {
				continue
			}

			into, from := c, other
			if other.CreatedAt.Before(c.CreatedAt) {
				into, from = other, c
			}

			if err := e.store.MergeClusters(ctx, into.ID, from.ID); err != nil {
				return count, fmt.Errorf("merge cluster %s into %s: %w", from.ID, into.ID, err)
			}
			merged[from.ID] = true
			count++
			e.log.Infow("merged clusters",
				"into", into.ID, "from", from.ID, "similarity", m.Similarity)

			reloaded, err := e.store.ClusterByID(ctx, into.ID)
			if err != nil {
				return count, fmt.Errorf("reload merged cluster %s: %w", into.ID, err)
			}
			if reloaded != nil {
				RefreshStats(reloaded, now)
				if err := e.store.SaveCluster(ctx, reloaded); err != nil {
					return count, fmt.Errorf("save merged cluster %s: %w", into.ID, err)
				}
				byID[into.ID] = reloaded
			}
			break // one merge per cluster per pass
		}
	}

	return count, nil
}

// sourceOverlap is |shared sources| / |smaller source set|.
func sourceOverlap(a, b *model.StoryCluster) float64 {
	sa, sb := a.Sources(), b.Sources()
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	shared := 0
	for s := range sa {
		if _, ok := sb[s]; ok {
			shared++
		}
	}

	smaller := len(sa)
	if len(sb) < smaller {
		smaller = len(sb)
	}
	return float64(shared) / float64(smaller)
}
