package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pressbrief/pressbrief/internal/model"
	"github.com/pressbrief/pressbrief/internal/postmark"
	"github.com/pressbrief/pressbrief/internal/render"
	"github.com/pressbrief/pressbrief/internal/selection"
	"github.com/pressbrief/pressbrief/internal/timeutil"
	"github.com/pressbrief/pressbrief/internal/worker"
	"github.com/pressbrief/pressbrief/internal/writer"
)

// Fallback tier sizes when a profile does not set its own.
const (
	defaultKeyStories = 3
	defaultQuickfire  = 5
)

// DigestStore records per-user delivery state.
type DigestStore interface {
	MarkSent(ctx context.Context, user string, clusterIDs []string, edition string, sentAt time.Time) error
}

// Dispatcher builds and sends one digest per user, fanning out across a
// bounded worker pool. Users are isolated: one user's failure does not stop
// the others.
type Dispatcher struct {
	selector *selection.Engine
	writer   writer.Writer
	renderer *render.Renderer
	sender   postmark.Sender
	store    DigestStore
	pool     *worker.Pool
	usersDir string
	brand    model.DigestSettings
	log      *zap.SugaredLogger
}

func NewDispatcher(selector *selection.Engine, w writer.Writer, renderer *render.Renderer, sender postmark.Sender, store DigestStore, pool *worker.Pool, usersDir string, brand model.DigestSettings, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		selector: selector,
		writer:   w,
		renderer: renderer,
		sender:   sender,
		store:    store,
		pool:     pool,
		usersDir: usersDir,
		brand:    brand,
		log:      log,
	}
}

// Dispatch builds and sends digests for the given users. An empty edition is
// resolved per user from their schedule. With dryRun the digest is built and
// rendered but nothing is sent and nothing is marked SENT.
func (d *Dispatcher) Dispatch(ctx context.Context, users []string, edition string, dryRun bool) []worker.Outcome {
	jobs := make([]worker.UserJob, len(users))
	for i, user := range users {
		jobs[i] = &digestJob{d: d, user: user, edition: edition, dryRun: dryRun}
	}
	return d.pool.Run(ctx, jobs)
}

type digestJob struct {
	d       *Dispatcher
	user    string
	edition string
	dryRun  bool
}

func (j *digestJob) User() string { return j.user }

func (j *digestJob) Execute(ctx context.Context) error {
	return j.d.dispatchOne(ctx, j.user, j.edition, j.dryRun)
}

func (d *Dispatcher) dispatchOne(ctx context.Context, user, edition string, dryRun bool) error {
	profile, err := model.LoadUserProfile(d.usersDir, user)
	if err != nil {
		return err
	}

	localNow, err := timeutil.NowIn(profile.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if edition == "" {
		edition = timeutil.CurrentEdition(localNow, profile.Schedule.Morning, profile.Schedule.Evening)
	}

	keyStories := profile.Newsletter.KeyStoriesCount
	if keyStories <= 0 {
		keyStories = defaultKeyStories
	}
	quickfire := profile.Newsletter.QuickfireCount
	if quickfire <= 0 {
		quickfire = defaultQuickfire
	}

	digest, err := d.selector.SelectDigest(ctx, profile, keyStories, quickfire)
	if err != nil {
		return err
	}
	if digest.Feature == nil {
		d.log.Infow("no unseen clusters, skipping digest", "user", user)
		return nil
	}

	analyses, err := d.writeCopy(ctx, digest, profile)
	if err != nil {
		return err
	}

	html, err := d.renderer.Newsletter(digest, analyses, profile, edition, localNow)
	if err != nil {
		return err
	}

	if dryRun {
		d.log.Infow("dry run, digest not sent",
			"user", user, "edition", edition, "bytes", len(html))
		return nil
	}

	subject := fmt.Sprintf("%s %s Edition: %s", d.brand.BrandName, editionLabel(edition), digest.Feature.Label)
	messageID, err := d.sender.Send(ctx, profile.Email, subject, html)
	if err != nil {
		return fmt.Errorf("%w: send digest to %s: %v", ErrTransientProvider, user, err)
	}

	// Mark SENT only after the provider accepted the message, so an
	// undelivered cluster stays PENDING for the next cycle.
	clusterIDs := make([]string, 0)
	for _, c := range digest.Clusters() {
		clusterIDs = append(clusterIDs, c.ID)
	}
	if err := d.store.MarkSent(ctx, user, clusterIDs, edition, time.Now()); err != nil {
		return fmt.Errorf("%w: digest sent but not recorded for %s: %v", ErrDataInconsistency, user, err)
	}

	d.log.Infow("digest sent",
		"user", user, "edition", edition, "clusters", len(clusterIDs), "message_id", messageID)
	return nil
}

// writeCopy generates the feature analysis and key-story summaries. The
// feature copy is essential; a key-story summary that fails falls back to
// the lead article's own summary.
func (d *Dispatcher) writeCopy(ctx context.Context, digest *selection.Digest, profile *model.UserProfile) (map[string]string, error) {
	analyses := make(map[string]string)

	feature, err := d.writer.FeatureAnalysis(ctx, digest.Feature, profile)
	if err != nil {
		return nil, fmt.Errorf("%w: feature analysis: %v", ErrTransientProvider, err)
	}
	analyses[digest.Feature.ID] = feature

	for _, c := range digest.KeyStories {
		summary, err := d.writer.KeySummary(ctx, c, profile)
		if err != nil {
			d.log.Warnw("key summary generation failed, using article summary",
				"user", profile.Name, "cluster", c.ID, "error", err)
			summary = fallbackSummary(c)
		}
		analyses[c.ID] = summary
	}
	return analyses, nil
}

func fallbackSummary(c *model.StoryCluster) string {
	latest := c.LatestArticle()
	if latest == nil {
		return c.Label
	}
	if latest.Summary != "" {
		return latest.Summary
	}
	return fmt.Sprintf("%s (%s)", latest.Title, latest.Source)
}

func editionLabel(edition string) string {
	if edition == "evening" {
		return "Evening"
	}
	return "Morning"
}
