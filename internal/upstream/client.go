// Package upstream is the HTTP transport to the remote check-in API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/asean-events/checkin-station/internal/config"
	"github.com/asean-events/checkin-station/internal/models"
)

// ErrUnreachable reports that the check-in API could not be reached.
var ErrUnreachable = errors.New("check-in API unreachable")

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// Client talks to the check-in API with the station's session cookies
// and CSRF token.
type Client struct {
	baseURL    *url.URL
	scanPath   string
	eventsPath string
	csrf       CSRFSource
	httpClient *http.Client
	location   *time.Location
	logger     *zap.Logger
}

// NewClient creates a client for the configured API.
func NewClient(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	var csrf CSRFSource = CookieToken{Jar: jar, Name: cfg.CSRFCookie}
	if cfg.CSRFToken != "" {
		csrf = StaticToken(cfg.CSRFToken)
	}

	return &Client{
		baseURL:    base,
		scanPath:   cfg.UpstreamScanPath,
		eventsPath: cfg.UpstreamEventsPath,
		csrf:       csrf,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		location: cfg.Location(),
		logger:   logger,
	}, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = path
	return u.String()
}

// Scan posts a code for verification. A response that carries a message is
// returned as a result even on a non-2xx status; anything else is an error.
func (c *Client) Scan(ctx context.Context, req models.ScanRequest) (*models.VerificationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scan request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.scanPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create scan request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.decorate(httpReq)

	c.logger.Debug("Posting scan",
		zap.String("target", httpReq.URL.String()),
		zap.Int64("event_id", req.EventID),
	)

	status, respBody, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	result, dropped, err := parseScanResult(respBody)
	if err != nil {
		return nil, fmt.Errorf("unexpected scan response (status %d): %w", status, err)
	}
	if len(dropped) > 0 {
		c.logger.Warn("Dropped malformed scan response fields", zap.Strings("fields", dropped))
	}

	result.OK = result.OK && status < http.StatusBadRequest
	return result, nil
}

// Events fetches the event list. Both a bare array and a {"data": [...]}
// envelope are accepted.
func (c *Client) Events(ctx context.Context) ([]models.Event, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.eventsPath), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create events request: %w", err)
	}
	c.decorate(httpReq)

	status, body, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusBadRequest {
		return nil, fmt.Errorf("events request failed with status %d", status)
	}

	var raw []wireEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		var envelope struct {
			Data []wireEvent `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("failed to decode events: %w", err)
		}
		raw = envelope.Data
	}

	events := make([]models.Event, 0, len(raw))
	for _, w := range raw {
		events = append(events, w.toEvent(c.location))
	}
	return events, nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if header, value, ok := c.csrf.Token(req.URL); ok {
		req.Header.Set(header, value)
	}
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to reach check-in API", zap.String("target", req.URL.String()), zap.Error(err))
		return 0, nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		c.logger.Error("Failed to read response body", zap.Error(err))
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
