package writer

import (
	"strings"
	"testing"

	"github.com/pressbrief/pressbrief/internal/model"
)

func promptCluster() *model.StoryCluster {
	return &model.StoryCluster{
		Label:       "Harbour bridge closed after crash",
		SourceCount: 2,
		Articles: []model.Article{
			{Source: "Outlet A", Title: "Harbour bridge closed after crash", Summary: "Both directions shut."},
			{Source: "Outlet B", Title: "Crash shuts harbour bridge"},
		},
	}
}

func promptProfile() *model.UserProfile {
	p := &model.UserProfile{Name: "alice"}
	p.Editorial.Lens = "infrastructure policy"
	p.Editorial.Tone = "dry"
	return p
}

func TestBuildFeaturePrompt(t *testing.T) {
	prompt := buildFeaturePrompt(promptCluster(), promptProfile())

	for _, want := range []string{
		"Editorial lens: infrastructure policy",
		"Tone: dry",
		"Story cluster: Harbour bridge closed after crash",
		"- Outlet A: Harbour bridge closed after crash",
		"  Both directions shut.",
		"- Outlet B: Crash shuts harbour bridge",
		"Cite sources inline.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("feature prompt missing %q\nprompt:\n%s", want, prompt)
		}
	}
}

func TestBuildBreakingPrompt_LimitsArticles(t *testing.T) {
	cluster := promptCluster()
	for i := 0; i < 10; i++ {
		cluster.Articles = append(cluster.Articles, model.Article{
			Source: "Outlet C", Title: "Follow-up report",
		})
	}

	prompt := buildBreakingPrompt(cluster, promptProfile())
	if got := strings.Count(prompt, "- Outlet"); got != 5 {
		t.Errorf("breaking prompt lists %d articles, want 5", got)
	}
	if !strings.Contains(prompt, "What we know") {
		t.Error("breaking prompt missing rundown format instructions")
	}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	if _, err := NewClient(model.WriterSettings{Model: "gpt-4o-mini"}, nil); err == nil {
		t.Fatal("NewClient() with empty API key succeeded, want error")
	}
}
