package score

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/pressbrief/pressbrief/internal/model"
)

// Breaking-keyword match on cluster labels contributes the final urgency
// component.
var breakingTerms = []string{"breaking", "urgent", "emergency", "death", "attack", "crash", "disaster"}

var (
	australiaPattern = regexp.MustCompile(`(?i)australia|australian|canberra|sydney|melbourne|brisbane|perth|adelaide`)
	nswPattern       = regexp.MustCompile(`(?i)nsw|new south wales|sydney|wollongong|newcastle`)
)

// Engine computes article, cluster and urgency scores. Pure and stateless;
// time enters only through an explicit now.
type Engine struct{}

// NewEngine creates a new scoring engine.
func NewEngine() *Engine {
	return &Engine{}
}

// ScoreArticle computes an article's base score at ingestion: 1 point floor,
// +2 for an image, +2 if under two hours old, +1 if under six.
func (e *Engine) ScoreArticle(article model.RawArticle, now time.Time) int {
	score := 1

	if article.ImageURL != "" {
		score += 2
	}

	ageHours := now.Sub(article.PublishedAt).Hours()
	switch {
	case ageHours < 2:
		score += 2
	case ageHours < 6:
		score++
	}

	return score
}

// ScoreClusterForUser computes a cluster's relevance to one user's profile.
// The model is additive and unbounded; scores are only ever used for
// ordering. An excluded topic match is -100, which dominates any combination
// of boosts.
func (e *Engine) ScoreClusterForUser(cluster *model.StoryCluster, profile *model.UserProfile) float64 {
	score := float64(cluster.SourceCount) * 3

	// Diminishing returns on raw article volume
	score += math.Log2(float64(cluster.ArticleCount)+1) * 2

	score += cluster.PeakVelocity * 2

	text := strings.ToLower(cluster.Label + " " + strings.Join(cluster.Keywords, " "))

	for _, topic := range profile.Topics.Boost {
		if strings.Contains(text, strings.ToLower(topic)) {
			score += 5
		}
	}

	for _, topic := range profile.Topics.Exclude {
		if strings.Contains(text, strings.ToLower(topic)) {
			score -= 100
		}
	}

	if profile.Topics.BoostAustralia && australiaPattern.MatchString(text) {
		score += 3
	}
	if profile.Topics.BoostNSW && nswPattern.MatchString(text) {
		score += 2
	}

	if cluster.HasImage() {
		score += 2
	}

	return score
}

// Urgency computes a cluster's breaking-news urgency as the sum of four
// capped components: velocity (0-0.3), source diversity (0-0.3), freshness of
// the latest member (0-0.2) and a breaking-keyword match on the label
// (0-0.2). The caps make 1.0 the reachable maximum without an explicit clamp.
func (e *Engine) Urgency(cluster *model.StoryCluster, now time.Time) float64 {
	score := math.Min(0.3, cluster.PeakVelocity/10)
	score += math.Min(0.3, float64(cluster.SourceCount)/10)

	if latest := cluster.LatestArticle(); latest != nil {
		ageHours := now.Sub(latest.PublishedAt).Hours()
		switch {
		case ageHours < 1:
			score += 0.2
		case ageHours < 2:
			score += 0.1
		}
	}

	label := strings.ToLower(cluster.Label)
	for _, term := range breakingTerms {
		if strings.Contains(label, term) {
			score += 0.2
			break
		}
	}

	return score
}
