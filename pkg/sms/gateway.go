package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Gateway sends a text message to a phone number
type Gateway interface {
	Send(ctx context.Context, phone, message string) error
	Name() string
}

// HTTPGateway sends messages through a URL-campaign style HTTP API:
// a GET with the key, recipient, sender and message as query parameters.
type HTTPGateway struct {
	endpoint string
	apiKey   string
	sender   string
	client   *http.Client
}

// NewHTTPGateway creates a new HTTP SMS gateway
func NewHTTPGateway(endpoint, apiKey, sender string) *HTTPGateway {
	return &HTTPGateway{
		endpoint: endpoint,
		apiKey:   apiKey,
		sender:   sender,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *HTTPGateway) Send(ctx context.Context, phone, message string) error {
	params := url.Values{}
	params.Add("key", g.apiKey)
	params.Add("to", phone)
	params.Add("sender", g.sender)
	params.Add("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build SMS request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SMS API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (g *HTTPGateway) Name() string {
	return "http"
}

// LogGateway only logs messages; used outside production
type LogGateway struct {
	logger *logrus.Logger
}

func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Send(_ context.Context, phone, message string) error {
	g.logger.WithFields(logrus.Fields{
		"phone":   phone,
		"message": message,
	}).Info("SMS (dev mode, not sent)")
	return nil
}

func (g *LogGateway) Name() string {
	return "log"
}
