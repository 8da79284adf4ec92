package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pressbrief/pressbrief/internal/cluster"
	"github.com/pressbrief/pressbrief/internal/model"
	"github.com/pressbrief/pressbrief/internal/render"
	"github.com/pressbrief/pressbrief/internal/score"
	"github.com/pressbrief/pressbrief/internal/selection"
	"github.com/pressbrief/pressbrief/internal/urgency"
	"github.com/pressbrief/pressbrief/internal/vectorindex"
	"github.com/pressbrief/pressbrief/internal/worker"
)

// memStore is an in-memory stand-in for the Postgres store, covering the
// interfaces the pipeline and cluster engine consume.
type memStore struct {
	mu       sync.Mutex
	articles map[string]*model.Article
	byURL    map[string]string
	clusters map[string]*model.StoryCluster
	sent     map[string]map[string]bool // user -> cluster IDs marked SENT
	alerts   []*model.BreakingAlert
}

func newMemStore() *memStore {
	return &memStore{
		articles: map[string]*model.Article{},
		byURL:    map[string]string{},
		clusters: map[string]*model.StoryCluster{},
		sent:     map[string]map[string]bool{},
	}
}

func (s *memStore) InsertArticle(_ context.Context, a *model.Article) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byURL[a.URL]; dup {
		return false, nil
	}
	stored := *a
	s.articles[a.ID] = &stored
	s.byURL[a.URL] = a.ID
	return true, nil
}

func (s *memStore) UnclusteredArticles(_ context.Context, limit int) ([]*model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Article
	for _, a := range s.articles {
		if a.ClusterID == "" {
			copied := *a
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) CountArticles(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.articles), nil
}

func (s *memStore) ArticleByID(_ context.Context, id string) (*model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (s *memStore) AttachArticle(_ context.Context, clusterID, articleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[articleID]
	if !ok {
		return fmt.Errorf("unknown article %s", articleID)
	}
	c, ok := s.clusters[clusterID]
	if !ok {
		return fmt.Errorf("unknown cluster %s", clusterID)
	}
	a.ClusterID = clusterID
	c.Articles = append(c.Articles, *a)
	return nil
}

func (s *memStore) CreateCluster(_ context.Context, c *model.StoryCluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *c
	s.clusters[c.ID] = &stored
	for i := range c.Articles {
		if a, ok := s.articles[c.Articles[i].ID]; ok {
			a.ClusterID = c.ID
		}
	}
	return nil
}

func (s *memStore) SaveCluster(_ context.Context, c *model.StoryCluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *c
	s.clusters[c.ID] = &stored
	return nil
}

func (s *memStore) ClusterByID(_ context.Context, id string) (*model.StoryCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clusters[id]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (s *memStore) ActiveClusters(_ context.Context) ([]*model.StoryCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.StoryCluster
	for _, c := range s.clusters {
		if c.Status == model.ClusterActive {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memStore) MarkClustersStale(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, c := range s.clusters {
		if c.Status == model.ClusterActive && c.LastUpdated.Before(before) {
			c.Status = model.ClusterStale
			count++
		}
	}
	return count, nil
}

func (s *memStore) MergeClusters(_ context.Context, intoID, fromID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	into, ok := s.clusters[intoID]
	if !ok {
		return fmt.Errorf("unknown cluster %s", intoID)
	}
	from, ok := s.clusters[fromID]
	if !ok {
		return fmt.Errorf("unknown cluster %s", fromID)
	}
	for i := range from.Articles {
		if a, ok := s.articles[from.Articles[i].ID]; ok {
			a.ClusterID = intoID
		}
		moved := from.Articles[i]
		moved.ClusterID = intoID
		into.Articles = append(into.Articles, moved)
	}
	delete(s.clusters, fromID)
	return nil
}

func (s *memStore) UnsentActiveClusters(_ context.Context, user string) ([]*model.StoryCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.StoryCluster
	for _, c := range s.clusters {
		if c.Status == model.ClusterActive && !s.sent[user][c.ID] {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, user string, clusterIDs []string, _ string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent[user] == nil {
		s.sent[user] = map[string]bool{}
	}
	for _, id := range clusterIDs {
		s.sent[user][id] = true
	}
	return nil
}

func (s *memStore) TrendingClusters(_ context.Context, minSources, limit int) ([]*model.StoryCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.StoryCluster
	for _, c := range s.clusters {
		if c.Status == model.ClusterActive && c.SourceCount >= minSources {
			copied := *c
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) CountAlertsSince(_ context.Context, user string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, a := range s.alerts {
		if a.User == user && !a.SentAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) AlertedClusterIDsSince(_ context.Context, user string, since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, a := range s.alerts {
		if a.User == user && !a.SentAt.Before(since) {
			ids = append(ids, a.ClusterID)
		}
	}
	return ids, nil
}

func (s *memStore) AppendAlert(_ context.Context, a *model.BreakingAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *a
	s.alerts = append(s.alerts, &stored)
	return nil
}

// fakeFeed serves a fixed batch, or an error.
type fakeFeed struct {
	articles []model.RawArticle
	err      error
}

func (f *fakeFeed) FetchUnread(context.Context) ([]model.RawArticle, error) {
	return f.articles, f.err
}

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := f.vectors[text]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

// fakeWriter returns canned copy.
type fakeWriter struct {
	failKey bool
}

func (f *fakeWriter) FeatureAnalysis(_ context.Context, c *model.StoryCluster, _ *model.UserProfile) (string, error) {
	return "<p>Feature analysis of " + c.Label + "</p>", nil
}

func (f *fakeWriter) KeySummary(_ context.Context, c *model.StoryCluster, _ *model.UserProfile) (string, error) {
	if f.failKey {
		return "", errors.New("model unavailable")
	}
	return "Summary of " + c.Label, nil
}

func (f *fakeWriter) BreakingAnalysis(_ context.Context, c *model.StoryCluster, _ *model.UserProfile) (string, error) {
	return "<p>What we know about " + c.Label + "</p>", nil
}

// fakeSender records deliveries.
type fakeSender struct {
	mu    sync.Mutex
	sends []sentMail
	err   error
}

type sentMail struct {
	to      string
	subject string
	body    string
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentMail{to: to, subject: subject, body: body})
	return fmt.Sprintf("msg-%d", len(f.sends)), nil
}

func testClusterEngine(store *memStore, index vectorindex.Index) *cluster.Engine {
	return cluster.NewEngine(store, index, model.ClusteringSettings{
		SimilarityThreshold:   0.8,
		MinSourcesForTrending: 3,
		StaleAfterHours:       24,
		MergeSourceOverlapMax: 0.5,
	}, zap.NewNop().Sugar())
}

func rawArticle(url, title, source string, publishedAt time.Time) model.RawArticle {
	return model.RawArticle{
		URL:         url,
		Title:       title,
		Summary:     "Summary.",
		Source:      source,
		PublishedAt: publishedAt,
	}
}

func writeProfile(t *testing.T, dir, name string, breaking bool) {
	t.Helper()
	profile := fmt.Sprintf(`email: %s@example.com
schedule:
  morning: 7
  evening: 18
  timezone: UTC
breaking:
  enabled: %v
newsletter:
  key_stories_count: 2
  quickfire_count: 2
`, name, breaking)
	if err := os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(profile), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCurate_FullCycle(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	index := vectorindex.NewMemoryIndex()

	// Two outlets on the same story, one unrelated story, one duplicate URL.
	f := &fakeFeed{articles: []model.RawArticle{
		rawArticle("https://a.example/bridge", "Harbour bridge closed", "Outlet A", now.Add(-time.Hour)),
		rawArticle("https://b.example/bridge", "Bridge shut after crash", "Outlet B", now.Add(-30*time.Minute)),
		rawArticle("https://a.example/bridge", "Harbour bridge closed", "Outlet A", now.Add(-time.Hour)),
		rawArticle("https://c.example/rates", "Rates held steady", "Outlet C", now.Add(-2*time.Hour)),
	}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Harbour bridge closed. Summary.":   {1, 0, 0},
		"Bridge shut after crash. Summary.": {0.95, 0.31, 0},
		"Rates held steady. Summary.":       {0, 1, 0},
	}}

	curator := NewCurator(f, store, embedder, testClusterEngine(store, index),
		score.NewEngine(), zap.NewNop().Sugar())

	report, err := curator.Curate(context.Background(), now)
	if err != nil {
		t.Fatalf("Curate() error: %v", err)
	}

	if report.Fetched != 4 {
		t.Errorf("Fetched = %d, want 4", report.Fetched)
	}
	if report.New != 3 {
		t.Errorf("New = %d, want 3 after URL dedup", report.New)
	}
	if report.Clustered != 3 {
		t.Errorf("Clustered = %d, want 3", report.Clustered)
	}
	if len(store.clusters) != 2 {
		t.Fatalf("cluster count = %d, want 2", len(store.clusters))
	}

	var bridge *model.StoryCluster
	for _, c := range store.clusters {
		if c.ArticleCount == 2 {
			bridge = c
		}
	}
	if bridge == nil {
		t.Fatal("no two-article cluster; corroborated join failed")
	}
	if bridge.SourceCount != 2 {
		t.Errorf("bridge SourceCount = %d, want 2", bridge.SourceCount)
	}
}

func TestCurate_FeedFailureAborts(t *testing.T) {
	store := newMemStore()
	curator := NewCurator(&fakeFeed{err: errors.New("connection refused")}, store,
		&fakeEmbedder{}, testClusterEngine(store, vectorindex.NewMemoryIndex()),
		score.NewEngine(), zap.NewNop().Sugar())

	_, err := curator.Curate(context.Background(), time.Now())
	if !errors.Is(err, ErrTransientProvider) {
		t.Fatalf("Curate() error = %v, want ErrTransientProvider", err)
	}
	if len(store.articles) != 0 {
		t.Error("articles persisted despite aborted cycle")
	}
}

func TestCurate_EmbedFailureThenBackfill(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	index := vectorindex.NewMemoryIndex()

	f := &fakeFeed{articles: []model.RawArticle{
		rawArticle("https://a.example/bridge", "Harbour bridge closed", "Outlet A", now.Add(-time.Hour)),
	}}
	broken := &fakeEmbedder{err: errors.New("timeout")}
	curator := NewCurator(f, store, broken, testClusterEngine(store, index),
		score.NewEngine(), zap.NewNop().Sugar())

	_, err := curator.Curate(context.Background(), now)
	if !errors.Is(err, ErrTransientProvider) {
		t.Fatalf("Curate() error = %v, want ErrTransientProvider", err)
	}
	// The article is stored but must not be clustered.
	if len(store.articles) != 1 {
		t.Fatalf("article count = %d, want 1", len(store.articles))
	}
	if len(store.clusters) != 0 {
		t.Fatal("cluster created despite embedding failure")
	}

	// Backfill with a healthy embedder recovers the orphan.
	working := NewCurator(f, store, &fakeEmbedder{vectors: map[string][]float32{}},
		testClusterEngine(store, index), score.NewEngine(), zap.NewNop().Sugar())
	count, err := working.Backfill(context.Background(), 100, now)
	if err != nil {
		t.Fatalf("Backfill() error: %v", err)
	}
	if count != 1 {
		t.Errorf("Backfill() = %d, want 1", count)
	}
	if len(store.clusters) != 1 {
		t.Errorf("cluster count after backfill = %d, want 1", len(store.clusters))
	}
}

func newTestDispatcher(t *testing.T, store *memStore, sender *fakeSender, w *fakeWriter, usersDir string) *Dispatcher {
	t.Helper()
	renderer, err := render.NewRenderer(
		model.DigestSettings{BrandName: "Pressbrief"},
		model.PostmarkSettings{ReplyTo: "desk@example.com"},
	)
	if err != nil {
		t.Fatal(err)
	}
	selector := selection.NewEngine(store, score.NewEngine(), zap.NewNop().Sugar())
	return NewDispatcher(selector, w, renderer, sender, store, worker.NewPool(2),
		usersDir, model.DigestSettings{BrandName: "Pressbrief"}, zap.NewNop().Sugar())
}

func seedCluster(store *memStore, id, label, source string, sources int, age time.Duration) {
	now := time.Now()
	store.clusters[id] = &model.StoryCluster{
		ID:           id,
		Label:        label,
		Status:       model.ClusterActive,
		SourceCount:  sources,
		ArticleCount: 1,
		PeakVelocity: float64(sources),
		LastUpdated:  now,
		CreatedAt:    now.Add(-age),
		Articles: []model.Article{
			{ID: id + "-a", URL: "https://outlet.example/" + id, Title: label,
				Source: source, PublishedAt: now.Add(-age)},
		},
	}
}

func TestDispatch_SendsAndMarksSent(t *testing.T) {
	usersDir := t.TempDir()
	writeProfile(t, usersDir, "alice", true)

	store := newMemStore()
	seedCluster(store, "c1", "Harbour bridge closed", "Outlet A", 3, time.Hour)
	seedCluster(store, "c2", "Rates held steady", "Outlet B", 2, 2*time.Hour)

	sender := &fakeSender{}
	d := newTestDispatcher(t, store, sender, &fakeWriter{}, usersDir)

	outcomes := d.Dispatch(context.Background(), []string{"alice"}, "morning", false)
	if len(outcomes) != 1 || outcomes[0].Err != nil {
		t.Fatalf("Dispatch() outcomes = %+v", outcomes)
	}

	if len(sender.sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sender.sends))
	}
	if sender.sends[0].to != "alice@example.com" {
		t.Errorf("sent to %q", sender.sends[0].to)
	}
	// Both clusters were selected, so both must be SENT now.
	if !store.sent["alice"]["c1"] || !store.sent["alice"]["c2"] {
		t.Errorf("sent state = %v, want c1 and c2 marked", store.sent["alice"])
	}

	// A second dispatch finds nothing unseen and sends nothing.
	outcomes = d.Dispatch(context.Background(), []string{"alice"}, "morning", false)
	if outcomes[0].Err != nil {
		t.Fatalf("second Dispatch() error: %v", outcomes[0].Err)
	}
	if len(sender.sends) != 1 {
		t.Errorf("sends after second dispatch = %d, want still 1", len(sender.sends))
	}
}

func TestDispatch_DryRunSendsNothing(t *testing.T) {
	usersDir := t.TempDir()
	writeProfile(t, usersDir, "alice", true)

	store := newMemStore()
	seedCluster(store, "c1", "Harbour bridge closed", "Outlet A", 3, time.Hour)

	sender := &fakeSender{}
	d := newTestDispatcher(t, store, sender, &fakeWriter{}, usersDir)

	outcomes := d.Dispatch(context.Background(), []string{"alice"}, "", true)
	if outcomes[0].Err != nil {
		t.Fatalf("Dispatch() error: %v", outcomes[0].Err)
	}
	if len(sender.sends) != 0 {
		t.Errorf("sends = %d, want 0 for dry run", len(sender.sends))
	}
	if len(store.sent["alice"]) != 0 {
		t.Errorf("sent state = %v, want empty for dry run", store.sent["alice"])
	}
}

func TestDispatch_SendFailureLeavesPending(t *testing.T) {
	usersDir := t.TempDir()
	writeProfile(t, usersDir, "alice", true)

	store := newMemStore()
	seedCluster(store, "c1", "Harbour bridge closed", "Outlet A", 3, time.Hour)

	sender := &fakeSender{err: errors.New("postmark down")}
	d := newTestDispatcher(t, store, sender, &fakeWriter{}, usersDir)

	outcomes := d.Dispatch(context.Background(), []string{"alice"}, "morning", false)
	if !errors.Is(outcomes[0].Err, ErrTransientProvider) {
		t.Fatalf("outcome error = %v, want ErrTransientProvider", outcomes[0].Err)
	}
	if len(store.sent["alice"]) != 0 {
		t.Errorf("sent state = %v, want empty after failed send", store.sent["alice"])
	}
}

func newTestSweeper(t *testing.T, store *memStore, sender *fakeSender, usersDir string, maxPerDay int) *Sweeper {
	t.Helper()
	renderer, err := render.NewRenderer(
		model.DigestSettings{BrandName: "Pressbrief"},
		model.PostmarkSettings{},
	)
	if err != nil {
		t.Fatal(err)
	}
	cfg := model.BreakingSettings{
		Enabled:                   true,
		MaxPerDay:                 maxPerDay,
		QuietStart:                22,
		QuietEnd:                  6,
		UrgencyThreshold:          0.5,
		CriticalOverrideThreshold: 0.8,
	}
	detector := urgency.NewDetector(store, score.NewEngine(), cfg, zap.NewNop().Sugar())
	return NewSweeper(detector, &fakeWriter{}, renderer, sender, store,
		usersDir, model.DigestSettings{BrandName: "Pressbrief"}, 3, zap.NewNop().Sugar())
}

func TestSweep_ForceSendsAndRecords(t *testing.T) {
	usersDir := t.TempDir()
	writeProfile(t, usersDir, "alice", true)
	writeProfile(t, usersDir, "bob", false) // breaking disabled

	store := newMemStore()
	seedCluster(store, "hot", "Grid failure across the state", "Outlet A", 4, 30*time.Minute)
	store.clusters["hot"].PeakVelocity = 5

	sender := &fakeSender{}
	s := newTestSweeper(t, store, sender, usersDir, 2)

	sent, err := s.Sweep(context.Background(), []string{"alice", "bob"}, true, time.Now())
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	if sent != 1 {
		t.Fatalf("Sweep() = %d alerts, want 1 (bob has breaking disabled)", sent)
	}
	if len(store.alerts) != 1 || store.alerts[0].User != "alice" {
		t.Fatalf("alerts = %+v, want one for alice", store.alerts)
	}
	if store.alerts[0].ClusterID != "hot" {
		t.Errorf("alert cluster = %q", store.alerts[0].ClusterID)
	}

	// The same cluster must not alert the same user twice, even forced.
	sent, err = s.Sweep(context.Background(), []string{"alice", "bob"}, true, time.Now())
	if err != nil {
		t.Fatalf("second Sweep() error: %v", err)
	}
	if sent != 0 {
		t.Errorf("second Sweep() = %d alerts, want 0 for already-alerted cluster", sent)
	}
}

func TestSweep_DailyCapBlocksEvenCritical(t *testing.T) {
	usersDir := t.TempDir()
	writeProfile(t, usersDir, "alice", true)

	store := newMemStore()
	// Velocity and sources cap out and freshness adds 0.2: urgency 0.8,
	// at the critical override, so only the daily cap can stop it.
	seedCluster(store, "hot", "Grid failure across the state", "Outlet A", 4, 30*time.Minute)
	store.clusters["hot"].PeakVelocity = 5

	sender := &fakeSender{}
	s := newTestSweeper(t, store, sender, usersDir, 0)

	sent, err := s.Sweep(context.Background(), []string{"alice"}, false, time.Now())
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	if sent != 0 {
		t.Errorf("Sweep() = %d alerts, want 0 at daily cap", sent)
	}
	if len(sender.sends) != 0 {
		t.Errorf("sends = %d, want 0", len(sender.sends))
	}
}
