package urgency

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pressbrief/pressbrief/internal/model"
	"github.com/pressbrief/pressbrief/internal/score"
)

type fakeStore struct {
	trending []*model.StoryCluster
	alerts   map[string]int
}

func (s *fakeStore) TrendingClusters(_ context.Context, minSources, limit int) ([]*model.StoryCluster, error) {
	var out []*model.StoryCluster
	for _, c := range s.trending {
		if c.SourceCount >= minSources {
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) CountAlertsSince(_ context.Context, user string, _ time.Time) (int, error) {
	return s.alerts[user], nil
}

func testSettings() model.BreakingSettings {
	return model.BreakingSettings{
		Enabled:                   true,
		MaxPerDay:                 2,
		QuietStart:                22,
		QuietEnd:                  6,
		UrgencyThreshold:          0.5,
		CriticalOverrideThreshold: 0.8,
	}
}

func velocityCluster(id string, sources int, velocity float64, latest time.Time) *model.StoryCluster {
	return &model.StoryCluster{
		ID:           id,
		Label:        "Ongoing story " + id,
		Status:       model.ClusterActive,
		SourceCount:  sources,
		ArticleCount: sources,
		PeakVelocity: velocity,
		Articles: []model.Article{
			{ID: id + "-a", Title: "Ongoing story " + id, Source: "Outlet", PublishedAt: latest},
		},
	}
}

func TestInQuietHours(t *testing.T) {
	tests := []struct {
		name             string
		hour, start, end int
		want             bool
	}{
		{"inside wrapped window before midnight", 23, 22, 6, true},
		{"inside wrapped window after midnight", 3, 22, 6, true},
		{"at wrapped start", 22, 22, 6, true},
		{"at wrapped end is outside", 6, 22, 6, false},
		{"daytime outside wrapped window", 10, 22, 6, false},
		{"inside plain window", 14, 13, 17, true},
		{"at plain end is outside", 17, 13, 17, false},
		{"before plain window", 12, 13, 17, false},
		{"equal bounds are an empty window at the bound", 22, 22, 22, false},
		{"equal bounds are an empty window elsewhere", 3, 22, 22, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InQuietHours(tt.hour, tt.start, tt.end); got != tt.want {
				t.Errorf("InQuietHours(%d, %d, %d) = %v, want %v",
					tt.hour, tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestInQuietHours_EqualBoundsNeverQuiet(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		if InQuietHours(hour, 22, 22) {
			t.Errorf("InQuietHours(%d, 22, 22) = true, want false (empty window)", hour)
		}
	}
}

func TestFindCandidates(t *testing.T) {
	now := time.Now()
	store := &fakeStore{
		trending: []*model.StoryCluster{
			// velocity 5 and 4 sources both hit their 0.3 caps, fresh
			// adds 0.2: urgency 0.8.
			velocityCluster("hot", 4, 5, now.Add(-30*time.Minute)),
			// velocity 1, 3 sources, day-old: 0.4, under threshold.
			velocityCluster("tepid", 3, 1, now.Add(-26*time.Hour)),
		},
	}
	d := NewDetector(store, score.NewEngine(), testSettings(), zap.NewNop().Sugar())

	candidates, err := d.FindCandidates(context.Background(), 3, now)
	if err != nil {
		t.Fatalf("FindCandidates() error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("len(candidates) = %d, want 1", len(candidates))
	}
	if candidates[0].Cluster.ID != "hot" {
		t.Errorf("candidate = %q, want hot", candidates[0].Cluster.ID)
	}
	if candidates[0].Urgency < 0.5 {
		t.Errorf("candidate urgency = %v, want >= threshold", candidates[0].Urgency)
	}
}

func TestShouldDeliver_QuietHours(t *testing.T) {
	store := &fakeStore{alerts: map[string]int{}}
	d := NewDetector(store, score.NewEngine(), testSettings(), zap.NewNop().Sugar())
	ctx := context.Background()

	night := time.Date(2026, 3, 10, 23, 15, 0, 0, time.UTC)
	day := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	ok, err := d.ShouldDeliver(ctx, "alice", 0.6, night)
	if err != nil {
		t.Fatalf("ShouldDeliver() error: %v", err)
	}
	if ok {
		t.Error("0.6 urgency delivered during quiet hours")
	}

	ok, err = d.ShouldDeliver(ctx, "alice", 0.85, night)
	if err != nil {
		t.Fatalf("ShouldDeliver() error: %v", err)
	}
	if !ok {
		t.Error("critical urgency suppressed during quiet hours, want override")
	}

	ok, err = d.ShouldDeliver(ctx, "alice", 0.6, day)
	if err != nil {
		t.Fatalf("ShouldDeliver() error: %v", err)
	}
	if !ok {
		t.Error("daytime alert suppressed")
	}
}

func TestShouldDeliver_DailyCapIsAbsolute(t *testing.T) {
	store := &fakeStore{alerts: map[string]int{"alice": 2}}
	d := NewDetector(store, score.NewEngine(), testSettings(), zap.NewNop().Sugar())
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	// At the cap even a critical-urgency alert is withheld.
	ok, err := d.ShouldDeliver(ctx, "alice", 0.95, day)
	if err != nil {
		t.Fatalf("ShouldDeliver() error: %v", err)
	}
	if ok {
		t.Error("alert delivered past the daily cap")
	}

	// Another user is unaffected.
	ok, err = d.ShouldDeliver(ctx, "bob", 0.6, day)
	if err != nil {
		t.Fatalf("ShouldDeliver() error: %v", err)
	}
	if !ok {
		t.Error("alert for uncapped user suppressed")
	}
}
