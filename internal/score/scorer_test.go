package score

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/pressbrief/pressbrief/internal/model"
)

func testCluster(sources, articles int, velocity float64, label string, latestAge time.Duration, now time.Time) *model.StoryCluster {
	c := &model.StoryCluster{
		Label:        label,
		Status:       model.ClusterActive,
		SourceCount:  sources,
		ArticleCount: articles,
		PeakVelocity: velocity,
	}
	for i := 0; i < articles; i++ {
		c.Articles = append(c.Articles, model.Article{
			ID:          fmt.Sprintf("a%d", i),
			Title:       label,
			Source:      fmt.Sprintf("source-%d", i%sources),
			PublishedAt: now.Add(-latestAge - time.Duration(i)*time.Hour),
		})
	}
	return c
}

func TestScoreArticle(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		imageURL string
		age      time.Duration
		want     int
	}{
		{"fresh with image", "https://cdn.example.com/a.jpg", 30 * time.Minute, 5},
		{"fresh without image", "", 30 * time.Minute, 3},
		{"moderate age", "", 4 * time.Hour, 2},
		{"old without image", "", 12 * time.Hour, 1},
		{"old with image", "https://cdn.example.com/a.jpg", 12 * time.Hour, 3},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			article := model.RawArticle{
				Title:       "Some headline",
				Source:      "Example Wire",
				ImageURL:    tt.imageURL,
				PublishedAt: now.Add(-tt.age),
			}
			if got := engine.ScoreArticle(article, now); got != tt.want {
				t.Errorf("ScoreArticle() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreClusterForUser_ExclusionDominates(t *testing.T) {
	now := time.Now()
	engine := NewEngine()

	cluster := testCluster(4, 8, 3, "Election result sparks celebration", time.Hour, now)
	cluster.Keywords = []string{"election", "result"}
	cluster.Articles[0].ImageURL = "https://cdn.example.com/img.jpg"

	profile := &model.UserProfile{}
	base := engine.ScoreClusterForUser(cluster, profile)

	boosted := &model.UserProfile{}
	boosted.Topics.Boost = []string{"election", "celebration", "result"}
	boosted.Topics.Exclude = []string{"election"}

	excluded := engine.ScoreClusterForUser(cluster, boosted)
	if excluded >= base {
		t.Errorf("excluded score %v should be below unboosted score %v regardless of boosts", excluded, base)
	}
}

func TestScoreClusterForUser_Components(t *testing.T) {
	now := time.Now()
	engine := NewEngine()

	cluster := testCluster(2, 3, 1, "Sydney storm warning", time.Hour, now)
	cluster.Keywords = []string{"sydney", "storm", "warning"}

	profile := &model.UserProfile{}
	profile.Topics.BoostAustralia = true
	profile.Topics.BoostNSW = true
	profile.Topics.Boost = []string{"storm"}

	// 2*3 + 2*log2(4) + 2*1 + 5 (boost) + 3 (australia) + 2 (nsw) = 22
	want := 6 + 2*math.Log2(4) + 2 + 5 + 3 + 2
	if got := engine.ScoreClusterForUser(cluster, profile); math.Abs(got-want) > 1e-9 {
		t.Errorf("ScoreClusterForUser() = %v, want %v", got, want)
	}
}

func TestUrgency_SpecScenario(t *testing.T) {
	now := time.Now()
	engine := NewEngine()

	// sourceCount=6, peakVelocity=4, latest member 30 minutes old, no
	// breaking keyword: min(0.3, 0.4) + min(0.3, 0.6) + 0.2 + 0 = 0.8
	cluster := testCluster(6, 6, 4, "Quiet policy announcement", 30*time.Minute, now)

	got := engine.Urgency(cluster, now)
	if math.Abs(got-0.8) > 1e-9 {
		t.Errorf("Urgency() = %v, want 0.8", got)
	}
}

func TestUrgency_Bounded(t *testing.T) {
	now := time.Now()
	engine := NewEngine()

	tests := []struct {
		name     string
		cluster  *model.StoryCluster
	}{
		{"everything maxed", testCluster(20, 40, 50, "Breaking: disaster unfolds", 10*time.Minute, now)},
		{"high velocity only", testCluster(1, 30, 100, "Single outlet spam", 30*time.Minute, now)},
		{"empty cluster", &model.StoryCluster{Label: "breaking", SourceCount: 50, PeakVelocity: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Urgency(tt.cluster, now)
			if got < 0 || got > 1.0 {
				t.Errorf("Urgency() = %v, want within [0, 1.0]", got)
			}
		})
	}
}

func TestUrgency_ComponentCaps(t *testing.T) {
	now := time.Now()
	engine := NewEngine()

	// Velocity alone, far above the cap: only the 0.3 velocity component and
	// stale freshness apply.
	cluster := testCluster(1, 1, 1000, "routine update", 5*time.Hour, now)
	cluster.SourceCount = 0

	got := engine.Urgency(cluster, now)
	if math.Abs(got-0.3) > 1e-9 {
		t.Errorf("Urgency() = %v, want velocity capped at 0.3", got)
	}
}

func TestUrgency_BreakingKeyword(t *testing.T) {
	now := time.Now()
	engine := NewEngine()

	plain := testCluster(2, 2, 1, "Parliament passes budget", 3*time.Hour, now)
	breaking := testCluster(2, 2, 1, "Breaking: parliament passes budget", 3*time.Hour, now)

	diff := engine.Urgency(breaking, now) - engine.Urgency(plain, now)
	if math.Abs(diff-0.2) > 1e-9 {
		t.Errorf("breaking keyword contribution = %v, want 0.2", diff)
	}
}
