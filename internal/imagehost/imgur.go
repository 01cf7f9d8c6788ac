// Package imagehost uploads generated images to a public host so the
// publishing API can fetch them by URL.
package imagehost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/manash/imgpost/internal/provider"
	"github.com/manash/imgpost/pkg/models"
)

const (
	defaultBaseURL = "https://api.imgur.com"
	defaultTimeout = 60 * time.Second
)

type uploadRequest struct {
	Image string `json:"image"`
	Type  string `json:"type"`
}

// uploadResponse matches the Imgur image endpoint's envelope.
type uploadResponse struct {
	Data struct {
		ID         string `json:"id"`
		Link       string `json:"link"`
		DeleteHash string `json:"deletehash"`
	} `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

// Client talks to the Imgur API using an anonymous Client-ID.
type Client struct {
	clientID   string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg *provider.Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		clientID: cfg.APIKey,
		baseURL:  baseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(defaultTimeout),
		},
		logger: logger.Named("imgur"),
	}, nil
}

// Upload sends the image as base64 JSON. Any non-200 response is fatal and
// carries the response body.
func (c *Client) Upload(ctx context.Context, data []byte) (*models.HostedImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no image data to upload", provider.ErrValidation)
	}

	payload, err := json.Marshal(uploadRequest{
		Image: base64.StdEncoding.EncodeToString(data),
		Type:  "base64",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload request: %w", err)
	}

	url := c.baseURL + "/3/image"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Client-ID "+c.clientID)

	provider.LogRequest(c.logger, http.MethodPost, url, req.Header, payload)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", provider.ErrUpload, provider.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", provider.ErrUpload, err)
	}

	provider.LogResponse(c.logger, resp.StatusCode, resp.Header, body)

	if resp.StatusCode != http.StatusOK {
		return nil, &provider.StatusError{Kind: provider.ErrUpload, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var uploadResp uploadResponse
	if err := json.Unmarshal(body, &uploadResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", provider.ErrUpload, err)
	}
	if uploadResp.Data.Link == "" {
		return nil, &provider.StatusError{Kind: provider.ErrUpload, StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.logger.Info("image uploaded", zap.String("url", uploadResp.Data.Link), zap.Int("bytes", len(data)))

	return &models.HostedImage{
		URL:        uploadResp.Data.Link,
		ID:         uploadResp.Data.ID,
		DeleteHash: uploadResp.Data.DeleteHash,
	}, nil
}

// Delete removes an anonymously uploaded image using its delete hash.
func (c *Client) Delete(ctx context.Context, deleteHash string) error {
	if deleteHash == "" {
		return fmt.Errorf("%w: delete hash is required", provider.ErrValidation)
	}

	url := c.baseURL + "/3/image/" + deleteHash
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &provider.StatusError{Kind: provider.ErrUpload, StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.logger.Info("image deleted", zap.String("delete_hash", deleteHash))
	return nil
}
