// Package gateway is a typed client for the mobile-money collection API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"seatpay/internal/metrics"
)

const (
	tokenPath   = "/oauth/token"
	previewPath = "/third-parties/payments/preview-ussd-push-request"
	pushPath    = "/third-parties/payments/initiate-ussd-push-request"
	statusPath  = "/third-parties/payments/"

	// tokenRefreshMargin renews a cached token shortly before it expires.
	tokenRefreshMargin = 30 * time.Second

	defaultTimeout = 8 * time.Second
)

// Config holds gateway connection settings.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	Transport    http.RoundTripper
}

// Client wraps the gateway's token, preview, push and status calls.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a new gateway client. Outbound requests are recorded as
// New Relic external segments when a transaction is in the request context.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newrelic.NewRoundTripper(transport),
		},
		now: time.Now,
	}
}

// Authenticate exchanges the client credentials for a bearer token. It always
// performs a fresh exchange; other calls go through the in-memory cache.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &Error{Op: "token", Kind: ErrUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tok tokenResponse
	if err := c.send(req, "token", &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", &Error{Op: "token", Kind: ErrMalformedResponse, Message: "empty access token"}
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.mu.Unlock()

	return tok.AccessToken, nil
}

// PreviewCollection asks whether the phone can currently receive a push.
func (c *Client) PreviewCollection(ctx context.Context, in CollectionRequest) (*PreviewResult, error) {
	var out PreviewResult
	if err := c.call(ctx, "preview", http.MethodPost, previewPath, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PushCollection triggers the PIN prompt on the payer's device.
func (c *Client) PushCollection(ctx context.Context, in CollectionRequest) (*PushResult, error) {
	var out PushResult
	if err := c.call(ctx, "push", http.MethodPost, pushPath, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryStatus fetches the gateway's view of an order.
func (c *Client) QueryStatus(ctx context.Context, orderReference string) (*StatusResult, error) {
	var out StatusResult
	path := statusPath + url.PathEscape(orderReference)
	if err := c.call(ctx, "status", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// bearer returns a cached token, fetching a new one when missing or near expiry.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, expiry := c.token, c.tokenExpiry
	c.mu.Unlock()

	if token != "" && c.now().Add(tokenRefreshMargin).Before(expiry) {
		return token, nil
	}
	return c.Authenticate(ctx)
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

func (c *Client) call(ctx context.Context, op, method, path string, body, out any) error {
	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Kind: ErrRejected, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, Kind: ErrUnavailable, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	err = c.send(req, op, out)
	if errors.Is(err, ErrUnauthorized) {
		c.invalidateToken()
	}
	return err
}

// send executes req, classifies failures and decodes a 2xx body into out.
func (c *Client) send(req *http.Request, op string, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.GatewayRequestDuration.WithLabelValues(op, outcomeLabel(err)).Observe(time.Since(start).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Kind: classifyTransportError(err), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Op: op, Kind: classifyTransportError(err), StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Op:         op,
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    remoteMessage(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, Kind: ErrMalformedResponse, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrUnavailable
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return ErrTimeout
	case code >= 400 && code < 500:
		return ErrRejected
	default:
		return ErrUnavailable
	}
}

func remoteMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "unavailable"
	}
}
