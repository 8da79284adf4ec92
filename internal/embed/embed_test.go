package embed

import (
	"testing"
	"time"

	"github.com/pressbrief/pressbrief/internal/model"
)

func testSettings(apiKey string) model.EmbeddingSettings {
	return model.EmbeddingSettings{
		Model:             "text-embedding-3-small",
		APIKey:            apiKey,
		Dimensions:        1024,
		BatchSize:         128,
		RequestsPerSecond: 2,
		CacheTTL:          time.Hour,
	}
}

func TestCacheKey(t *testing.T) {
	a := cacheKey("Flood warning issued for the valley")
	b := cacheKey("Flood warning issued for the valley")
	c := cacheKey("A different headline entirely")

	if a != b {
		t.Errorf("same text hashed to different keys: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different texts hashed to the same key")
	}
	if len(a) != len("embed:v1:")+64 {
		t.Errorf("key %q has unexpected length %d", a, len(a))
	}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(testSettings(""), nil)
	if err == nil {
		t.Fatal("NewClient() with empty API key succeeded, want error")
	}
}
