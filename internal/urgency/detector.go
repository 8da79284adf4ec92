// Package urgency detects breaking-news candidates among active clusters and
// enforces the per-user alert delivery policy.
package urgency

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pressbrief/pressbrief/internal/model"
	"github.com/pressbrief/pressbrief/internal/score"
)

// candidateLimit bounds how many high-velocity clusters are scored per sweep.
const candidateLimit = 10

// Store is the subset of persistence the detector needs.
type Store interface {
	// TrendingClusters returns active clusters with at least minSources
	// distinct sources, ordered by peak velocity descending, at most limit.
	TrendingClusters(ctx context.Context, minSources, limit int) ([]*model.StoryCluster, error)
	// CountAlertsSince counts breaking alerts recorded for a user at or
	// after the given instant.
	CountAlertsSince(ctx context.Context, user string, since time.Time) (int, error)
}

// Candidate is a cluster that crossed the urgency threshold, paired with its
// score so callers can apply the critical override without rescoring.
type Candidate struct {
	Cluster *model.StoryCluster
	Urgency float64
}

// Detector finds breaking-news candidates and decides whether an alert may be
// delivered to a given user right now.
type Detector struct {
	store  Store
	scorer *score.Engine
	cfg    model.BreakingSettings
	log    *zap.SugaredLogger
}

func NewDetector(store Store, scorer *score.Engine, cfg model.BreakingSettings, log *zap.SugaredLogger) *Detector {
	return &Detector{store: store, scorer: scorer, cfg: cfg, log: log}
}

// FindCandidates scores the highest-velocity trending clusters and returns
// those whose urgency meets the configured threshold, preserving the
// velocity-descending order.
func (d *Detector) FindCandidates(ctx context.Context, minSources int, now time.Time) ([]Candidate, error) {
	clusters, err := d.store.TrendingClusters(ctx, minSources, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("load trending clusters: %w", err)
	}

	var candidates []Candidate
	for _, c := range clusters {
		u := d.scorer.Urgency(c, now)
		if u < d.cfg.UrgencyThreshold {
			continue
		}
		d.log.Debugw("breaking candidate", "cluster", c.ID, "label", c.Label, "urgency", u)
		candidates = append(candidates, Candidate{Cluster: c, Urgency: u})
	}
	return candidates, nil
}

// InQuietHours reports whether the local hour falls inside the quiet window
// [start, end). A window whose start is later than its end wraps past
// midnight, so 22..6 covers 22:00 through 05:59. Equal bounds are an empty
// window, never a full day.
func InQuietHours(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// ShouldDeliver applies the delivery gate for one user: quiet hours suppress
// alerts unless the urgency reaches the critical override threshold, and the
// daily cap is absolute regardless of urgency. localNow must already be in the
// user's timezone.
func (d *Detector) ShouldDeliver(ctx context.Context, user string, urgency float64, localNow time.Time) (bool, error) {
	if InQuietHours(localNow.Hour(), d.cfg.QuietStart, d.cfg.QuietEnd) &&
		urgency < d.cfg.CriticalOverrideThreshold {
		d.log.Debugw("alert suppressed by quiet hours",
			"user", user, "hour", localNow.Hour(), "urgency", urgency)
		return false, nil
	}

	midnight := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, localNow.Location())
	sent, err := d.store.CountAlertsSince(ctx, user, midnight)
	if err != nil {
		return false, fmt.Errorf("count alerts for %s: %w", user, err)
	}
	if sent >= d.cfg.MaxPerDay {
		d.log.Debugw("alert suppressed by daily cap",
			"user", user, "sent_today", sent, "max_per_day", d.cfg.MaxPerDay)
		return false, nil
	}
	return true, nil
}
