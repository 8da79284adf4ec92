package model

import "time"

// ClusterStatus is the lifecycle state of a story cluster. The only modeled
// transition is ACTIVE -> STALE; a stale cluster is never reactivated.
type ClusterStatus string

const (
	ClusterActive ClusterStatus = "ACTIVE"
	ClusterStale  ClusterStatus = "STALE"
)

// StoryCluster is a set of articles, from possibly many outlets, judged to
// describe the same real-world event. The cluster exclusively owns its
// membership list; articles are mutated only through the cluster engine.
type StoryCluster struct {
	ID           string        `json:"id"`
	Label        string        `json:"label"`    // Title of the most recently published member
	Keywords     []string      `json:"keywords"` // Derived, advisory only
	Status       ClusterStatus `json:"status"`
	SourceCount  int           `json:"source_count"`
	ArticleCount int           `json:"article_count"`
	PeakVelocity float64       `json:"peak_velocity"` // Max articles/hour observed; never decreases
	LastUpdated  time.Time     `json:"last_updated"`
	CreatedAt    time.Time     `json:"created_at"`
	Articles     []Article     `json:"articles,omitempty"`
}

// HasImage reports whether any member article carries an image.
func (c *StoryCluster) HasImage() bool {
	for i := range c.Articles {
		if c.Articles[i].HasImage() {
			return true
		}
	}
	return false
}

// LatestArticle returns the member with the most recent PublishedAt, or nil
// for an empty cluster.
func (c *StoryCluster) LatestArticle() *Article {
	if len(c.Articles) == 0 {
		return nil
	}
	latest := &c.Articles[0]
	for i := range c.Articles[1:] {
		if c.Articles[i+1].PublishedAt.After(latest.PublishedAt) {
			latest = &c.Articles[i+1]
		}
	}
	return latest
}

// Sources returns the distinct outlet names among member articles.
func (c *StoryCluster) Sources() map[string]struct{} {
	sources := make(map[string]struct{}, len(c.Articles))
	for i := range c.Articles {
		sources[c.Articles[i].Source] = struct{}{}
	}
	return sources
}

// CurationStatus tracks per-user delivery state for a cluster. A cluster with
// no curation record is treated as PENDING.
type CurationStatus string

const (
	CurationPending CurationStatus = "PENDING"
	CurationSent    CurationStatus = "SENT"
)

// UserCuration is per-user, per-cluster delivery state. Transitions to SENT
// exactly once, when a digest containing the cluster is dispatched. Never
// deleted.
type UserCuration struct {
	User      string         `json:"user"`
	ClusterID string         `json:"cluster_id"`
	Status    CurationStatus `json:"status"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`
	Edition   string         `json:"edition,omitempty"`
}

// BreakingAlert is an append-only record of an urgency alert sent to a user
// for a cluster. Enforces the per-user daily cap and suppresses re-alerts
// for the same cluster.
type BreakingAlert struct {
	ID         string    `json:"id"`
	User       string    `json:"user"`
	ClusterID  string    `json:"cluster_id"`
	Headline   string    `json:"headline"`
	Analysis   string    `json:"analysis,omitempty"`
	ArticleIDs []string  `json:"article_ids"`
	SentAt     time.Time `json:"sent_at"`
}
