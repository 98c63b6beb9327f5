package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Message is one rendered customer message.
type Message struct {
	Kind       string `json:"kind"`
	OrderID    int64  `json:"order_id,omitempty"`
	CustomerID int64  `json:"customer_id"`
	To         string `json:"to"`
	Text       string `json:"text"`
	Link       string `json:"link,omitempty"`
}

// Channel delivers rendered messages.
type Channel interface {
	Deliver(ctx context.Context, msg Message) error
}

// LogChannel writes messages to the structured log. Staff pick them up from
// there when no gateway is configured.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel constructs LogChannel.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger}
}

// Deliver implements Channel.
func (c *LogChannel) Deliver(ctx context.Context, msg Message) error {
	c.logger.InfoContext(ctx, "customer message",
		slog.String("kind", msg.Kind),
		slog.Int64("customer_id", msg.CustomerID),
		slog.Int64("order_id", msg.OrderID),
		slog.String("to", msg.To),
		slog.String("link", msg.Link),
	)
	return nil
}

// WebhookChannel posts messages as JSON to an HTTP endpoint.
type WebhookChannel struct {
	url        string
	httpClient *http.Client
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Deliver implements Channel. Any non-2xx response is an error so the task
// is retried.
func (c *WebhookChannel) Deliver(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
