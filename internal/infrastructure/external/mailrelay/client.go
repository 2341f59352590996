// Package mailrelay delivers notification emails through an HTTP mail relay.
// The relay accepts one JSON message per request and answers 2xx on accept.
package mailrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/metrics"
	"github.com/admissions-hub/admissions-core/pkg/circuitbreaker"
	"github.com/admissions-hub/admissions-core/pkg/logger"
	"github.com/admissions-hub/admissions-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ErrNoRelayURL is returned by NewClient without a relay URL.
var ErrNoRelayURL = errors.New("mail relay url is required")

// Config contains configuration for the mail relay client.
type Config struct {
	// BaseURL is the relay endpoint root, e.g. https://relay.example.org
	BaseURL string

	// APIKey is sent as a bearer token when set
	APIKey string

	// Timeout per HTTP request
	Timeout time.Duration

	// MaxAttempts per delivery, including the first
	MaxAttempts int

	// InitialDelay before the first retry
	InitialDelay time.Duration

	Logger *logger.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		Timeout:      10 * time.Second,
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements notification.Channel over the relay's HTTP API.
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	log        *logger.Logger
}

var _ notification.Channel = (*Client)(nil)

// NewClient creates a new mail relay client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoRelayURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 200 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	log := cfg.Logger.With(logger.String("component", "mail_relay"))

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.MailRelayBreaker(func(name string, from, to circuitbreaker.State) {
			metrics.SetCircuitOpen(name, to == circuitbreaker.StateOpen)
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
		retrier: retry.New(
			retry.WithMaxAttempts(cfg.MaxAttempts),
			retry.WithInitialDelay(cfg.InitialDelay),
			retry.WithMaxDelay(5*time.Second),
		),
		log: log,
	}, nil
}

// Name identifies the channel.
func (c *Client) Name() string {
	return "email"
}

// emailRequest is the relay's message body.
type emailRequest struct {
	RecipientID   string `json:"recipient_id"`
	Type          string `json:"type"`
	Subject       string `json:"subject"`
	Text          string `json:"text"`
	ApplicationID string `json:"application_id,omitempty"`
	Reference     string `json:"reference"`
}

// Deliver hands the notification to the relay. Transient failures are
// retried; once the breaker opens, deliveries fail fast with
// circuitbreaker.ErrCircuitOpen.
func (c *Client) Deliver(ctx context.Context, n *notification.Notification) error {
	if n == nil {
		return errors.New("nil notification")
	}

	body := emailRequest{
		RecipientID:   n.RecipientID.String(),
		Type:          n.Type.String(),
		Subject:       n.Title,
		Text:          n.Message,
		ApplicationID: n.ApplicationID,
		Reference:     n.ID.String(),
	}

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.send(ctx, "/v1/messages", body)
		})
	})

	switch {
	case err == nil:
		metrics.RecordEmailDelivery(metrics.DeliverySent)
		return nil
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		metrics.RecordEmailDelivery(metrics.DeliverySkipped)
	default:
		metrics.RecordEmailDelivery(metrics.DeliveryFailed)
	}
	return fmt.Errorf("deliver notification %s: %w", n.ID, err)
}

// State exposes the breaker state for health reporting.
func (c *Client) State() circuitbreaker.State {
	return c.breaker.State()
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// StatusError is a non-2xx answer from the relay.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("mail relay: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("mail relay: status %d", e.StatusCode)
}

// RetryDelay returns the relay's Retry-After hint. A hint longer than the
// client's maximum backoff ends the delivery attempt.
func (e *StatusError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// send performs a single request. Errors worth another attempt come back
// wrapped with retry.Retryable.
func (c *Client) send(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	c.log.Debug("mail relay request", logger.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 300 {
		return nil
	}

	statusErr := &StatusError{StatusCode: resp.StatusCode}
	var apiErr struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(respBody, &apiErr) == nil {
		statusErr.Message = apiErr.Message
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				statusErr.RetryAfter = time.Duration(seconds) * time.Second
			}
		}
		return retry.Retryable(statusErr)
	}
	if resp.StatusCode >= 500 {
		return retry.Retryable(statusErr)
	}
	return statusErr
}
