// Package instagram publishes single-image posts through the Instagram Graph API.
//
// Publishing is a two-call protocol: a media container is created from an image
// and caption, then the container is published. Optional pre-flight checks
// validate the access token, the target account and the remaining publish quota.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/manash/imgpost/internal/provider"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v18.0"
	defaultTimeout = 60 * time.Second
)

var DefaultRequiredScopes = []string{"instagram_basic", "instagram_content_publish"}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func WithRequiredScopes(scopes []string) Option {
	return func(c *Client) {
		if len(scopes) > 0 {
			c.requiredScopes = scopes
		}
	}
}

type Client struct {
	accessToken    string
	accountID      string
	baseURL        string
	httpClient     *http.Client
	requiredScopes []string
	logger         *zap.Logger
	now            func() time.Time
}

func New(cfg *provider.Config, accountID string, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}
	if accountID == "" {
		return nil, fmt.Errorf("%w: instagram account id is required", provider.ErrValidation)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	c := &Client{
		accessToken: cfg.APIKey,
		accountID:   accountID,
		baseURL:     baseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(defaultTimeout),
		},
		requiredScopes: DefaultRequiredScopes,
		logger:         zap.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("instagram")
	return c, nil
}

type idResponse struct {
	ID string `json:"id"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (int, []byte, error) {
	params.Set("access_token", c.accessToken)
	u := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, nil)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (int, []byte, error) {
	form.Set("access_token", c.accessToken)
	encoded := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(encoded))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, []byte(encoded))
}

func (c *Client) postMultipart(ctx context.Context, path string, body *bytes.Buffer, contentType string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, logBody []byte) (int, []byte, error) {
	provider.LogRequest(c.logger, req.Method, req.URL.String(), req.Header, logBody)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", provider.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: failed to read response: %v", provider.ErrNetwork, err)
	}

	provider.LogResponse(c.logger, resp.StatusCode, resp.Header, body)
	return resp.StatusCode, body, nil
}

func decodeID(body []byte) (string, error) {
	var r idResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if r.ID == "" {
		return "", fmt.Errorf("response has no id: %s", string(body))
	}
	return r.ID, nil
}
