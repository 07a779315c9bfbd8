// Package bus provides the message-bus bridge the incident engine publishes
// through.
package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Topic and routing keys of the incidents exchange.
const (
	TopicIncidents      = "incidents"
	RoutingKeyUpsert    = "upsert"
	RoutingKeyNewUpdate = "new-update"
)

const defaultTimeout = 10 * time.Second

// Publisher publishes a payload to a topic with a routing key.
// Delivery is at-most-once from the caller's perspective: the engine never
// retries a failed publish.
type Publisher interface {
	Publish(ctx context.Context, payload any, topic, routingKey string) error
}

// Config holds HTTP publisher configuration.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// HTTPPublisher posts messages to a broker gateway endpoint.
type HTTPPublisher struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPPublisher creates an HTTP publisher.
func NewHTTPPublisher(cfg Config) *HTTPPublisher {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &HTTPPublisher{
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// message is the gateway envelope.
type message struct {
	Topic      string `json:"topic"`
	RoutingKey string `json:"routing_key"`
	Payload    any    `json:"payload"`
}

// Publish posts the payload to the gateway.
func (p *HTTPPublisher) Publish(ctx context.Context, payload any, topic, routingKey string) error {
	body, err := json.Marshal(message{
		Topic:      topic,
		RoutingKey: routingKey,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", topic, routingKey, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("publish to %s/%s: gateway returned %d: %s", topic, routingKey, resp.StatusCode, snippet)
	}

	return nil
}

// LogPublisher discards messages, logging them at debug level. Used when the
// bus is disabled in configuration.
type LogPublisher struct{}

// Publish logs the message and drops it.
func (LogPublisher) Publish(_ context.Context, _ any, topic, routingKey string) error {
	slog.Debug("bus disabled, message dropped", "topic", topic, "routing_key", routingKey)
	return nil
}
