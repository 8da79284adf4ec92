package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pressbrief/pressbrief/internal/cluster"
	"github.com/pressbrief/pressbrief/internal/embed"
	"github.com/pressbrief/pressbrief/internal/feed"
	"github.com/pressbrief/pressbrief/internal/model"
	"github.com/pressbrief/pressbrief/internal/pipeline"
	"github.com/pressbrief/pressbrief/internal/postmark"
	"github.com/pressbrief/pressbrief/internal/render"
	"github.com/pressbrief/pressbrief/internal/score"
	"github.com/pressbrief/pressbrief/internal/selection"
	"github.com/pressbrief/pressbrief/internal/store"
	"github.com/pressbrief/pressbrief/internal/urgency"
	"github.com/pressbrief/pressbrief/internal/vectorindex"
	"github.com/pressbrief/pressbrief/internal/worker"
	"github.com/pressbrief/pressbrief/internal/writer"
)

// digestWorkers bounds the per-user fan-out during dispatch.
const digestWorkers = 4

// app holds the wired collaborators behind a command. Build with newApp and
// always Close.
type app struct {
	settings model.Settings
	log      *zap.SugaredLogger
	store    *store.Store
	index    *vectorindex.QdrantIndex
	scorer   *score.Engine
}

// loadSettings layers the config file and PRESSBRIEF_* environment over the
// defaults and validates the result.
func loadSettings() (model.Settings, error) {
	settings := model.DefaultSettings()
	if err := viper.Unmarshal(&settings); err != nil {
		return settings, fmt.Errorf("%w: parse config: %v", pipeline.ErrConfiguration, err)
	}
	if settings.UsersDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return settings, fmt.Errorf("find home directory: %w", err)
		}
		settings.UsersDir = filepath.Join(home, ".pressbrief", "users")
	}
	if err := settings.Validate(); err != nil {
		return settings, fmt.Errorf("%w: %v", pipeline.ErrConfiguration, err)
	}
	return settings, nil
}

func newLogger() (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}

func newApp(ctx context.Context) (*app, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	log, err := newLogger()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, settings.Database.DSN, log)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, err
	}

	index, err := vectorindex.NewQdrantIndex(ctx, vectorindex.QdrantConfig{
		Host:       settings.Index.Host,
		Port:       settings.Index.Port,
		APIKey:     settings.Index.APIKey,
		UseTLS:     settings.Index.UseTLS,
		Collection: settings.Index.Collection,
		Dimensions: uint64(settings.Embeddings.Dimensions),
	}, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		settings: settings,
		log:      log,
		store:    st,
		index:    index,
		scorer:   score.NewEngine(),
	}, nil
}

func (a *app) Close() {
	if err := a.index.Close(); err != nil {
		a.log.Warnw("close vector index", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warnw("close store", "error", err)
	}
	_ = a.log.Sync()
}

func (a *app) clusterEngine() *cluster.Engine {
	return cluster.NewEngine(a.store, a.index, a.settings.Clustering, a.log)
}

func (a *app) curator() (*pipeline.Curator, error) {
	embedder, err := embed.NewClient(a.settings.Embeddings, a.log)
	if err != nil {
		return nil, err
	}
	fetcher := feed.NewGReaderClient(a.settings.Feed, a.log)
	return pipeline.NewCurator(fetcher, a.store, embedder, a.clusterEngine(), a.scorer, a.log), nil
}

func (a *app) renderer() (*render.Renderer, error) {
	return render.NewRenderer(a.settings.Digest, a.settings.Postmark)
}

func (a *app) dispatcher() (*pipeline.Dispatcher, error) {
	w, err := writer.NewClient(a.settings.Writer, a.log)
	if err != nil {
		return nil, err
	}
	renderer, err := a.renderer()
	if err != nil {
		return nil, err
	}
	selector := selection.NewEngine(a.store, a.scorer, a.log)
	sender := postmark.NewClient(a.settings.Postmark, a.log)
	return pipeline.NewDispatcher(selector, w, renderer, sender, a.store,
		worker.NewPool(digestWorkers), a.settings.UsersDir, a.settings.Digest, a.log), nil
}

func (a *app) sweeper() (*pipeline.Sweeper, error) {
	w, err := writer.NewClient(a.settings.Writer, a.log)
	if err != nil {
		return nil, err
	}
	renderer, err := a.renderer()
	if err != nil {
		return nil, err
	}
	detector := urgency.NewDetector(a.store, a.scorer, a.settings.Breaking, a.log)
	sender := postmark.NewClient(a.settings.Postmark, a.log)
	return pipeline.NewSweeper(detector, w, renderer, sender, a.store,
		a.settings.UsersDir, a.settings.Digest,
		a.settings.Clustering.MinSourcesForTrending, a.log), nil
}

// targetUsers resolves the --user flag: one named user or everyone with a
// profile.
func (a *app) targetUsers(user string) ([]string, error) {
	if user != "" {
		return []string{user}, nil
	}
	users, err := model.ListUsers(a.settings.UsersDir)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no user profiles in %s", a.settings.UsersDir)
	}
	return users, nil
}
