// Package feed fetches raw articles from a GReader-API aggregator such as
// FreshRSS.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pressbrief/pressbrief/internal/model"
)

// Fetcher returns unread raw articles from the aggregator.
type Fetcher interface {
	FetchUnread(ctx context.Context) ([]model.RawArticle, error)
}

const (
	readingListStream = "user/-/state/com.google/reading-list"
	readStateExclude  = "user/-/state/com.google/read"
)

var (
	authTokenPattern  = regexp.MustCompile(`Auth=(\S+)`)
	contentImgPattern = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["']`)
)

// GReaderClient speaks the GReader API: ClientLogin for a session token,
// then the stream-contents endpoint for unread reading-list items.
type GReaderClient struct {
	cfg  model.FeedSettings
	http *http.Client
	log  *zap.SugaredLogger

	token string
}

func NewGReaderClient(cfg model.FeedSettings, log *zap.SugaredLogger) *GReaderClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GReaderClient{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// streamItem is the wire shape of one GReader item. Only the fields we read.
type streamItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Published int64  `json:"published"`
	Canonical []struct {
		Href string `json:"href"`
	} `json:"canonical"`
	Alternate []struct {
		Href string `json:"href"`
	} `json:"alternate"`
	Enclosure []struct {
		Href string `json:"href"`
		Type string `json:"type"`
	} `json:"enclosure"`
	Summary struct {
		Content string `json:"content"`
	} `json:"summary"`
	Content struct {
		Content string `json:"content"`
	} `json:"content"`
	Origin struct {
		Title    string `json:"title"`
		StreamID string `json:"streamId"`
	} `json:"origin"`
}

// FetchUnread authenticates if needed and returns the unread reading list.
func (c *GReaderClient) FetchUnread(ctx context.Context) ([]model.RawArticle, error) {
	if c.token == "" {
		token, err := c.login(ctx)
		if err != nil {
			return nil, err
		}
		c.token = token
	}

	endpoint := fmt.Sprintf("%s/reader/api/0/stream/contents/%s?n=%d&xt=%s",
		c.cfg.BaseURL, readingListStream, c.cfg.MaxItems, url.QueryEscape(readStateExclude))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Authorization", "GoogleLogin auth="+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch reading list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch reading list: status %d", resp.StatusCode)
	}

	var payload struct {
		Items []streamItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode reading list: %w", err)
	}

	articles := make([]model.RawArticle, 0, len(payload.Items))
	for _, item := range payload.Items {
		articles = append(articles, transformItem(item))
	}
	c.log.Debugw("fetched unread items", "count", len(articles))
	return articles, nil
}

func (c *GReaderClient) login(ctx context.Context) (string, error) {
	form := url.Values{
		"Email":  {c.cfg.Username},
		"Passwd": {c.cfg.Password},
		"output": {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/accounts/ClientLogin", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("aggregator login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("aggregator login: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read login response: %w", err)
	}
	match := authTokenPattern.FindSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("aggregator login: no auth token in response")
	}
	return string(match[1]), nil
}

// transformItem maps a GReader item to a raw article. The canonical link is
// preferred for the URL, then the first alternate, then the item ID.
func transformItem(item streamItem) model.RawArticle {
	article := model.RawArticle{
		URL:         item.ID,
		Title:       item.Title,
		Summary:     item.Summary.Content,
		Content:     item.Content.Content,
		Author:      item.Author,
		Source:      item.Origin.Title,
		SourceURL:   item.Origin.StreamID,
		PublishedAt: time.Unix(item.Published, 0).UTC(),
		ImageURL:    extractImage(item),
	}
	if len(item.Canonical) > 0 && item.Canonical[0].Href != "" {
		article.URL = item.Canonical[0].Href
	} else if len(item.Alternate) > 0 && item.Alternate[0].Href != "" {
		article.URL = item.Alternate[0].Href
	}
	if article.Title == "" {
		article.Title = "Untitled"
	}
	if article.Source == "" {
		article.Source = "Unknown"
	}
	return article
}

// extractImage prefers an image enclosure, then the first inline image in
// the item content.
func extractImage(item streamItem) string {
	if len(item.Enclosure) > 0 &&
		strings.HasPrefix(item.Enclosure[0].Type, "image/") && item.Enclosure[0].Href != "" {
		return item.Enclosure[0].Href
	}
	if item.Content.Content != "" {
		if m := contentImgPattern.FindStringSubmatch(item.Content.Content); m != nil {
			return m[1]
		}
	}
	return ""
}
