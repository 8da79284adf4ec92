// Package postmark delivers email through the Postmark HTTP API.
package postmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pressbrief/pressbrief/internal/model"
)

const defaultEndpoint = "https://api.postmarkapp.com/email"

// Sender delivers one HTML email and returns the provider message ID.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) (string, error)
}

// Client is the Postmark-backed Sender.
type Client struct {
	cfg      model.PostmarkSettings
	endpoint string
	http     *http.Client
	log      *zap.SugaredLogger
}

func NewClient(cfg model.PostmarkSettings, log *zap.SugaredLogger) *Client {
	return &Client{
		cfg:      cfg,
		endpoint: defaultEndpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
}

type sendRequest struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HtmlBody      string `json:"HtmlBody"`
	ReplyTo       string `json:"ReplyTo,omitempty"`
	MessageStream string `json:"MessageStream,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"MessageID"`
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// Send posts one email and returns Postmark's message ID.
func (c *Client) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	body, err := json.Marshal(sendRequest{
		From:          c.cfg.From,
		To:            to,
		Subject:       subject,
		HtmlBody:      htmlBody,
		ReplyTo:       c.cfg.ReplyTo,
		MessageStream: c.cfg.MessageStream,
	})
	if err != nil {
		return "", fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.cfg.ServerToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("postmark send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("postmark send: status %d: %s", resp.StatusCode, detail)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if out.ErrorCode != 0 {
		return "", fmt.Errorf("postmark send: error %d: %s", out.ErrorCode, out.Message)
	}

	c.log.Debugw("sent email", "to", to, "subject", subject, "message_id", out.MessageID)
	return out.MessageID, nil
}
