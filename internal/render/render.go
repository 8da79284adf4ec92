// Package render produces newsletter and breaking-alert HTML from embedded
// templates.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/pressbrief/pressbrief/internal/model"
	"github.com/pressbrief/pressbrief/internal/selection"
)

//go:embed templates/*.html
var templateFS embed.FS

// FeatureView is the feature slot with its generated analysis.
type FeatureView struct {
	Title       string
	URL         string
	ImageURL    string
	Source      string
	ExtraSource int // Other outlets beyond the lead, 0 when single-source
	Analysis    template.HTML
}

// StoryView is a key story with its generated summary.
type StoryView struct {
	Title    string
	URL      string
	ImageURL string
	Source   string
	Summary  template.HTML
}

// QuickfireView is a one-line quickfire entry.
type QuickfireView struct {
	Title  string
	URL    string
	Source string
}

// SourceView is one attributed headline in a breaking alert.
type SourceView struct {
	Source string
	Title  string
	URL    string
}

// Newsletter is the data a newsletter template renders.
type Newsletter struct {
	BrandName     string
	Tagline       string
	Edition       string
	FormattedDate string
	Signoff       string
	ReplyTo       string
	Feature       *FeatureView
	KeyStories    []StoryView
	Quickfire     []QuickfireView
}

// BreakingEmail is the data a breaking alert template renders.
type BreakingEmail struct {
	BrandName     string
	Headline      string
	FormattedTime string
	UrgencyReason string
	Analysis      template.HTML
	Sources       []SourceView
	ReplyTo       string
}

// Renderer renders digest and alert HTML.
type Renderer struct {
	newsletter *template.Template
	breaking   *template.Template
	digest     model.DigestSettings
	postmark   model.PostmarkSettings
}

func NewRenderer(digest model.DigestSettings, postmark model.PostmarkSettings) (*Renderer, error) {
	newsletter, err := template.ParseFS(templateFS, "templates/newsletter.html")
	if err != nil {
		return nil, fmt.Errorf("parse newsletter template: %w", err)
	}
	breaking, err := template.ParseFS(templateFS, "templates/breaking.html")
	if err != nil {
		return nil, fmt.Errorf("parse breaking template: %w", err)
	}
	return &Renderer{
		newsletter: newsletter,
		breaking:   breaking,
		digest:     digest,
		postmark:   postmark,
	}, nil
}

// Newsletter renders one user's digest. Generated copy in analyses and
// summaries is trusted HTML from our own writer; everything else is escaped.
func (r *Renderer) Newsletter(digest *selection.Digest, analyses map[string]string, profile *model.UserProfile, edition string, localNow time.Time) (string, error) {
	data := Newsletter{
		BrandName:     r.digest.BrandName,
		Tagline:       r.digest.Tagline,
		Edition:       editionName(edition),
		FormattedDate: localNow.Format("Monday, 2 January 2006"),
		Signoff:       profile.Editorial.Signoff,
		ReplyTo:       r.postmark.ReplyTo,
	}

	if digest.Feature != nil {
		data.Feature = featureView(digest.Feature, analyses[digest.Feature.ID])
	}
	for _, c := range digest.KeyStories {
		data.KeyStories = append(data.KeyStories, storyView(c, analyses[c.ID]))
	}
	for _, c := range digest.Quickfire {
		view := QuickfireView{Title: c.Label}
		if lead := leadArticle(c); lead != nil {
			view.URL = lead.URL
			view.Source = lead.Source
		}
		data.Quickfire = append(data.Quickfire, view)
	}

	var b strings.Builder
	if err := r.newsletter.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render newsletter: %w", err)
	}
	return b.String(), nil
}

// BreakingAlert renders an urgency alert for one cluster.
func (r *Renderer) BreakingAlert(cluster *model.StoryCluster, analysis string, localNow time.Time) (string, error) {
	data := BreakingEmail{
		BrandName:     r.digest.BrandName,
		Headline:      cluster.Label,
		FormattedTime: localNow.Format("3:04 PM, 2 Jan"),
		UrgencyReason: fmt.Sprintf("Multiple sources reporting: %d outlets covering this story.", cluster.SourceCount),
		Analysis:      template.HTML(analysis),
		ReplyTo:       r.postmark.ReplyTo,
	}
	for i := range cluster.Articles {
		if i == 5 {
			break
		}
		a := &cluster.Articles[i]
		data.Sources = append(data.Sources, SourceView{Source: a.Source, Title: a.Title, URL: a.URL})
	}

	var b strings.Builder
	if err := r.breaking.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render breaking alert: %w", err)
	}
	return b.String(), nil
}

func featureView(c *model.StoryCluster, analysis string) *FeatureView {
	view := &FeatureView{
		Title:    c.Label,
		Analysis: template.HTML(analysis),
	}
	if lead := leadArticle(c); lead != nil {
		view.URL = lead.URL
		view.Source = lead.Source
	}
	for i := range c.Articles {
		if c.Articles[i].HasImage() {
			view.ImageURL = c.Articles[i].ImageURL
			break
		}
	}
	if c.SourceCount > 1 {
		view.ExtraSource = c.SourceCount - 1
	}
	return view
}

func storyView(c *model.StoryCluster, summary string) StoryView {
	view := StoryView{
		Title:   c.Label,
		Summary: template.HTML(summary),
	}
	if lead := leadArticle(c); lead != nil {
		view.URL = lead.URL
		view.Source = lead.Source
	}
	for i := range c.Articles {
		if c.Articles[i].HasImage() {
			view.ImageURL = c.Articles[i].ImageURL
			break
		}
	}
	return view
}

func leadArticle(c *model.StoryCluster) *model.Article {
	if len(c.Articles) == 0 {
		return nil
	}
	return &c.Articles[0]
}

func editionName(edition string) string {
	if edition == "evening" {
		return "Evening"
	}
	return "Morning"
}
