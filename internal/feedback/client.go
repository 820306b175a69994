// Package feedback forwards user comments from the dashboard to a chat
// webhook and optionally keeps a copy in the history store.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cordoba-data/program-dashboard/internal/logging"
)

// ErrDisabled is returned by Send when no webhook is configured.
var ErrDisabled = errors.New("feedback webhook not configured")

// Comment is one user submission.
type Comment struct {
	Program string `json:"program"`
	Page    string `json:"page"`
	Text    string `json:"text"`
}

// Client posts comments to a chat webhook.
type Client struct {
	url        string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a webhook client. An empty url yields a client whose Send
// always returns ErrDisabled.
func NewClient(url string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url: strings.TrimSpace(url),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.Named("feedback"),
	}
}

// Enabled reports whether a webhook is configured.
func (c *Client) Enabled() bool { return c != nil && c.url != "" }

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type block struct {
	Type     string `json:"type"`
	Text     *text  `json:"text,omitempty"`
	Elements []text `json:"elements,omitempty"`
}

type message struct {
	Blocks []block `json:"blocks"`
}

func newMessage(cm Comment) message {
	title := "Comentario del tablero"
	if cm.Program != "" {
		title += ": " + cm.Program
	}
	page := cm.Page
	if page == "" {
		page = "-"
	}
	return message{Blocks: []block{
		{Type: "header", Text: &text{Type: "plain_text", Text: title}},
		{Type: "section", Text: &text{Type: "mrkdwn", Text: cm.Text}},
		{Type: "context", Elements: []text{{Type: "mrkdwn", Text: "Página: " + page}}},
	}}
}

// Send posts the comment. Only HTTP 200 counts as delivered.
func (c *Client) Send(ctx context.Context, cm Comment) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	body, err := json.Marshal(newMessage(cm))
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// The webhook URL embeds its secret; log the host only.
	logging.LogRequest(c.log, "feedback", req.Method, req.URL.Host)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	n, _ := io.Copy(io.Discard, resp.Body)
	logging.LogResponse(c.log, "feedback", resp.StatusCode, time.Since(start), int(n))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feedback webhook: status %d", resp.StatusCode)
	}
	return nil
}
