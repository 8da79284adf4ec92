package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pressbrief/pressbrief/internal/model"
	"github.com/pressbrief/pressbrief/internal/postmark"
	"github.com/pressbrief/pressbrief/internal/render"
	"github.com/pressbrief/pressbrief/internal/timeutil"
	"github.com/pressbrief/pressbrief/internal/urgency"
	"github.com/pressbrief/pressbrief/internal/writer"
)

// BreakingStore records delivered alerts and answers which clusters a user
// has already been alerted about.
type BreakingStore interface {
	AppendAlert(ctx context.Context, a *model.BreakingAlert) error
	AlertedClusterIDsSince(ctx context.Context, user string, since time.Time) ([]string, error)
}

// realertAfter is how long a cluster stays suppressed for a user after an
// alert. A story that is still hot a day later is effectively a new story.
const realertAfter = 24 * time.Hour

// Sweeper runs one breaking-news sweep: find candidate clusters, gate per
// user, and send alerts.
type Sweeper struct {
	detector   *urgency.Detector
	writer     writer.Writer
	renderer   *render.Renderer
	sender     postmark.Sender
	store      BreakingStore
	usersDir   string
	brand      model.DigestSettings
	minSources int
	log        *zap.SugaredLogger
}

func NewSweeper(detector *urgency.Detector, w writer.Writer, renderer *render.Renderer, sender postmark.Sender, store BreakingStore, usersDir string, brand model.DigestSettings, minSources int, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		detector:   detector,
		writer:     w,
		renderer:   renderer,
		sender:     sender,
		store:      store,
		usersDir:   usersDir,
		brand:      brand,
		minSources: minSources,
		log:        log,
	}
}

// Sweep evaluates candidates against every given user and returns the number
// of alerts sent. force bypasses quiet hours and the daily cap, for manual
// runs; the alert is still recorded either way.
func (s *Sweeper) Sweep(ctx context.Context, users []string, force bool, now time.Time) (int, error) {
	candidates, err := s.detector.FindCandidates(ctx, s.minSources, now)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		s.log.Infow("no breaking candidates")
		return 0, nil
	}
	s.log.Infow("found breaking candidates", "count", len(candidates))

	sent := 0
	for _, user := range users {
		alerted, err := s.store.AlertedClusterIDsSince(ctx, user, now.Add(-realertAfter))
		if err != nil {
			s.log.Errorw("load alert history", "user", user, "error", err)
			continue
		}
		seen := make(map[string]bool, len(alerted))
		for _, id := range alerted {
			seen[id] = true
		}

		for _, candidate := range candidates {
			if seen[candidate.Cluster.ID] {
				continue
			}
			delivered, err := s.alertUser(ctx, user, candidate, force, now)
			if err != nil {
				// One user's failure must not starve the rest of the sweep.
				s.log.Errorw("breaking alert failed",
					"user", user, "cluster", candidate.Cluster.ID, "error", err)
				continue
			}
			if delivered {
				sent++
			}
		}
	}
	return sent, nil
}

func (s *Sweeper) alertUser(ctx context.Context, user string, candidate urgency.Candidate, force bool, now time.Time) (bool, error) {
	profile, err := model.LoadUserProfile(s.usersDir, user)
	if err != nil {
		return false, err
	}
	if !profile.Breaking.Enabled {
		return false, nil
	}

	localNow, err := timeutil.NowIn(profile.Schedule.Timezone)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if !force {
		ok, err := s.detector.ShouldDeliver(ctx, user, candidate.Urgency, localNow)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	cluster := candidate.Cluster
	analysis, err := s.writer.BreakingAnalysis(ctx, cluster, profile)
	if err != nil {
		return false, fmt.Errorf("%w: breaking analysis: %v", ErrTransientProvider, err)
	}

	html, err := s.renderer.BreakingAlert(cluster, analysis, localNow)
	if err != nil {
		return false, err
	}

	subject := fmt.Sprintf("\U0001F6A8 %s: %s", s.brand.BrandName, cluster.Label)
	if _, err := s.sender.Send(ctx, profile.Email, subject, html); err != nil {
		return false, fmt.Errorf("%w: send alert to %s: %v", ErrTransientProvider, user, err)
	}

	articleIDs := make([]string, 0, len(cluster.Articles))
	for i := range cluster.Articles {
		articleIDs = append(articleIDs, cluster.Articles[i].ID)
	}
	alert := &model.BreakingAlert{
		ID:         uuid.NewString(),
		User:       user,
		ClusterID:  cluster.ID,
		Headline:   cluster.Label,
		Analysis:   analysis,
		ArticleIDs: articleIDs,
		SentAt:     now,
	}
	if err := s.store.AppendAlert(ctx, alert); err != nil {
		return false, fmt.Errorf("%w: alert sent but not recorded for %s: %v", ErrDataInconsistency, user, err)
	}

	s.log.Infow("breaking alert sent",
		"user", user, "cluster", cluster.ID, "urgency", candidate.Urgency)
	return true, nil
}
