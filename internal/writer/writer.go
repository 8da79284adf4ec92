// Package writer generates editorial copy for digests and alerts through an
// OpenAI-compatible chat completions endpoint.
package writer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/pressbrief/pressbrief/internal/model"
)

// Writer produces the three pieces of generated copy a digest or alert
// needs. Implementations must respect the user's editorial preferences.
type Writer interface {
	FeatureAnalysis(ctx context.Context, cluster *model.StoryCluster, profile *model.UserProfile) (string, error)
	KeySummary(ctx context.Context, cluster *model.StoryCluster, profile *model.UserProfile) (string, error)
	BreakingAnalysis(ctx context.Context, cluster *model.StoryCluster, profile *model.UserProfile) (string, error)
}

const requestTimeout = 45 * time.Second

const systemPrompt = "You are the editorial voice of a personal news digest. " +
	"Write tight, factual copy grounded only in the provided articles. " +
	"Cite outlets inline by name. Never invent facts."

// Client is a Writer backed by chat completions.
type Client struct {
	api *openai.Client
	cfg model.WriterSettings
	log *zap.SugaredLogger
}

func NewClient(cfg model.WriterSettings, log *zap.SugaredLogger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("writer API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Client{
		api: openai.NewClientWithConfig(clientConfig),
		cfg: cfg,
		log: log,
	}, nil
}

// FeatureAnalysis writes the multi-paragraph analysis for the feature slot.
func (c *Client) FeatureAnalysis(ctx context.Context, cluster *model.StoryCluster, profile *model.UserProfile) (string, error) {
	return c.complete(ctx, buildFeaturePrompt(cluster, profile), c.cfg.MaxTokensFeature)
}

// KeySummary writes a one-paragraph summary for a key story. When the model
// call fails the latest member's own summary is a serviceable fallback, but
// that decision belongs to the caller; this method just reports the error.
func (c *Client) KeySummary(ctx context.Context, cluster *model.StoryCluster, profile *model.UserProfile) (string, error) {
	return c.complete(ctx, buildKeySummaryPrompt(cluster, profile), c.cfg.MaxTokensKey)
}

// BreakingAnalysis writes the what-we-know rundown for a breaking alert.
func (c *Client) BreakingAnalysis(ctx context.Context, cluster *model.StoryCluster, profile *model.UserProfile) (string, error) {
	return c.complete(ctx, buildBreakingPrompt(cluster, profile), c.cfg.MaxTokensBreaking)
}

func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildFeaturePrompt(cluster *model.StoryCluster, profile *model.UserProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are writing the feature story for a personal news digest.\n\n")
	fmt.Fprintf(&b, "Editorial lens: %s\nTone: %s\n\n", profile.Editorial.Lens, profile.Editorial.Tone)
	fmt.Fprintf(&b, "Story cluster: %s\nArticles:\n", cluster.Label)
	writeArticleList(&b, cluster, 0)
	b.WriteString("\nWrite a 2-3 paragraph analysis covering:\n")
	b.WriteString("1. What happened (facts, sourced)\n")
	b.WriteString("2. Why it matters (context, implications)\n")
	b.WriteString("3. Your take (through the editorial lens)\n\n")
	b.WriteString("Keep it sharp, not preachy. Cite sources inline.")
	return b.String()
}

func buildKeySummaryPrompt(cluster *model.StoryCluster, profile *model.UserProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize this story in one tight paragraph for a news digest.\n\n")
	fmt.Fprintf(&b, "Tone: %s\n\nStory: %s\nArticles:\n", profile.Editorial.Tone, cluster.Label)
	writeArticleList(&b, cluster, 5)
	b.WriteString("\nOne paragraph, no preamble, name the outlets.")
	return b.String()
}

func buildBreakingPrompt(cluster *model.StoryCluster, profile *model.UserProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A story is breaking. Write a brief alert rundown.\n\n")
	fmt.Fprintf(&b, "Story: %s\nArticles:\n", cluster.Label)
	writeArticleList(&b, cluster, 5)
	b.WriteString("\nFormat as two short sections: \"What we know\" (bulleted facts with outlets) ")
	b.WriteString("and \"What to watch\" (one sentence). Only include facts multiple outlets agree on ")
	b.WriteString("in the first section.")
	return b.String()
}

// writeArticleList appends "- source: title / summary" lines, at most limit
// when limit is positive.
func writeArticleList(b *strings.Builder, cluster *model.StoryCluster, limit int) {
	for i := range cluster.Articles {
		if limit > 0 && i == limit {
			break
		}
		a := &cluster.Articles[i]
		fmt.Fprintf(b, "- %s: %s\n", a.Source, a.Title)
		if a.Summary != "" {
			fmt.Fprintf(b, "  %s\n", a.Summary)
		}
	}
}
