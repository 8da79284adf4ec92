// Package selection partitions a user's unseen active clusters into the
// tiers of one digest.
package selection

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pressbrief/pressbrief/internal/model"
	"github.com/pressbrief/pressbrief/internal/score"
)

// Store is the subset of persistence the selector needs.
type Store interface {
	// UnsentActiveClusters returns active clusters, members included, that
	// have not been marked SENT for the given user.
	UnsentActiveClusters(ctx context.Context, user string) ([]*model.StoryCluster, error)
}

// Digest is the selected content for one user's newsletter. Feature may be
// nil when the user has no unseen clusters.
type Digest struct {
	Feature    *model.StoryCluster
	KeyStories []*model.StoryCluster
	Quickfire  []*model.StoryCluster
}

// Clusters returns every selected cluster in tier order, for callers that
// mark curations sent or collect article IDs.
func (d *Digest) Clusters() []*model.StoryCluster {
	if d.Feature == nil {
		return nil
	}
	out := make([]*model.StoryCluster, 0, 1+len(d.KeyStories)+len(d.Quickfire))
	out = append(out, d.Feature)
	out = append(out, d.KeyStories...)
	out = append(out, d.Quickfire...)
	return out
}

// Engine selects digest content for users.
type Engine struct {
	store  Store
	scorer *score.Engine
	log    *zap.SugaredLogger
}

func NewEngine(store Store, scorer *score.Engine, log *zap.SugaredLogger) *Engine {
	return &Engine{store: store, scorer: scorer, log: log}
}

// SelectDigest scores the user's unseen active clusters, stable-sorts them by
// score descending, and partitions them into tiers. The feature slot prefers
// the highest-scoring cluster that has an image; when none has one it falls
// back to the top-ranked cluster. Key stories are the next keyStories
// clusters in rank order after removing the feature itself, and quickfire the
// quickfire clusters after those.
func (e *Engine) SelectDigest(ctx context.Context, profile *model.UserProfile, keyStories, quickfire int) (*Digest, error) {
	clusters, err := e.store.UnsentActiveClusters(ctx, profile.Name)
	if err != nil {
		return nil, fmt.Errorf("load unsent clusters for %s: %w", profile.Name, err)
	}
	if len(clusters) == 0 {
		return &Digest{}, nil
	}

	type scored struct {
		cluster *model.StoryCluster
		score   float64
	}
	ranked := make([]scored, len(clusters))
	for i, c := range clusters {
		ranked[i] = scored{cluster: c, score: e.scorer.ScoreClusterForUser(c, profile)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	feature := ranked[0].cluster
	for _, r := range ranked {
		if r.cluster.HasImage() {
			feature = r.cluster
			break
		}
	}

	digest := &Digest{Feature: feature}
	for _, r := range ranked {
		if r.cluster.ID == feature.ID {
			continue
		}
		switch {
		case len(digest.KeyStories) < keyStories:
			digest.KeyStories = append(digest.KeyStories, r.cluster)
		case len(digest.Quickfire) < quickfire:
			digest.Quickfire = append(digest.Quickfire, r.cluster)
		}
		if len(digest.KeyStories) == keyStories && len(digest.Quickfire) == quickfire {
			break
		}
	}

	e.log.Debugw("selected digest",
		"user", profile.Name,
		"feature", feature.ID,
		"key_stories", len(digest.KeyStories),
		"quickfire", len(digest.Quickfire))
	return digest, nil
}
