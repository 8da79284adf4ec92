package model

import "time"

// RawArticle is an article as returned by the feed aggregator, before scoring
// and persistence.
type RawArticle struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Content     string    `json:"content,omitempty"`
	Author      string    `json:"author,omitempty"`
	Source      string    `json:"source"`      // Outlet name
	SourceURL   string    `json:"source_url,omitempty"`
	PublishedAt time.Time `json:"published_at"` // Event time, not ingestion time
	ImageURL    string    `json:"image_url,omitempty"`
}

// Entities holds naively extracted named entities. Advisory only; nothing
// downstream depends on their accuracy.
type Entities struct {
	People    []string `json:"people"`
	Orgs      []string `json:"orgs"`
	Locations []string `json:"locations"`
}

// Article is a stored article. Immutable after ingestion except for ClusterID,
// which is a back-reference to the owning cluster. An article belongs to at
// most one cluster at a time; the cluster owns the membership edge.
type Article struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"` // Unique; the dedup boundary
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Content     string    `json:"content,omitempty"`
	Author      string    `json:"author,omitempty"`
	Source      string    `json:"source"`
	SourceURL   string    `json:"source_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	ImageURL    string    `json:"image_url,omitempty"`
	BaseScore   int       `json:"base_score"` // Computed once at ingestion
	Entities    *Entities `json:"entities,omitempty"`
	ClusterID   string    `json:"cluster_id,omitempty"` // Empty until clustering has run
	CreatedAt   time.Time `json:"created_at"`
}

// HasImage reports whether the article carries a usable image.
func (a *Article) HasImage() bool {
	return a.ImageURL != ""
}

// EmbeddingText is the text fed to the embedding provider: title plus summary
// when present, for better semantic matching than the headline alone.
func (a *Article) EmbeddingText() string {
	if a.Summary == "" {
		return a.Title
	}
	return a.Title + ". " + a.Summary
}
