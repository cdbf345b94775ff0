package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/learnmade/internal/apperror"
)

const (
	DefaultBaseURL = "https://api.resend.com"
	DefaultFrom    = "LearnMade <onboarding@resend.dev>"
)

// Config configures the Resend-compatible HTTP client.
type Config struct {
	APIKey  string
	BaseURL string
	From    string
	Timeout time.Duration
}

// Client talks to a Resend-compatible API: POST /emails and POST /emails/batch.
// It does not retry; callers decide what a failed send means.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Sender = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("email: missing API key (set EMAIL_API_KEY)")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if strings.TrimSpace(cfg.From) == "" {
		cfg.From = DefaultFrom
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With(slog.String("component", "email")),
	}, nil
}

func (c *Client) Send(ctx context.Context, msg Message) error {
	msg = c.withDefaults(msg)
	if err := checkMessage(msg); err != nil {
		return err
	}
	if err := c.post(ctx, "/emails", msg); err != nil {
		return apperror.Upstream("sending email", err)
	}
	c.logger.Debug("email sent", slog.String("subject", msg.Subject))
	return nil
}

func (c *Client) SendBatch(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) > MaxBatchSize {
		return fmt.Errorf("email: batch of %d exceeds the limit of %d", len(msgs), MaxBatchSize)
	}

	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		m = c.withDefaults(m)
		if err := checkMessage(m); err != nil {
			return err
		}
		out = append(out, m)
	}

	if err := c.post(ctx, "/emails/batch", out); err != nil {
		return apperror.Upstream("sending email batch", err)
	}
	c.logger.Debug("email batch sent", slog.Int("size", len(out)))
	return nil
}

func (c *Client) withDefaults(m Message) Message {
	if strings.TrimSpace(m.From) == "" {
		m.From = c.cfg.From
	}
	return m
}

func checkMessage(m Message) error {
	if len(m.To) == 0 {
		return fmt.Errorf("email: message has no recipient")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("email: message has no subject")
	}
	return nil
}

// HTTPError is a non-2xx gateway response.
type HTTPError struct {
	StatusCode int
	Name       string
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("email gateway http %d: %s", e.StatusCode, e.Message)
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		body = "<empty body>"
	}
	if len(body) > 500 {
		body = body[:500] + "..."
	}
	return fmt.Sprintf("email gateway http %d: %s", e.StatusCode, body)
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		he := &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil {
			he.Name = er.Name
			he.Message = er.Message
		}
		return he
	}
	return nil
}
