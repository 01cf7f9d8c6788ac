package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/manash/imgpost/internal/provider"
)

type debugTokenResponse struct {
	Data struct {
		IsValid   bool     `json:"is_valid"`
		ExpiresAt int64    `json:"expires_at"`
		Scopes    []string `json:"scopes"`
		Error     *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	} `json:"data"`
}

type quotaResponse struct {
	Data []struct {
		QuotaUsage int `json:"quota_usage"`
		Config     struct {
			QuotaTotal    int `json:"quota_total"`
			QuotaDuration int `json:"quota_duration"`
		} `json:"config"`
	} `json:"data"`
}

// Quota is the account's content publishing allowance for the rolling window.
type Quota struct {
	Usage int
	Total int
}

func (q Quota) Remaining() int {
	if q.Usage >= q.Total {
		return 0
	}
	return q.Total - q.Usage
}

// ValidateToken checks that the access token is valid, unexpired, and carries
// every required scope. An expires_at of zero means the token never expires.
func (c *Client) ValidateToken(ctx context.Context) error {
	params := url.Values{}
	params.Set("input_token", c.accessToken)

	status, body, err := c.get(ctx, "/debug_token", params)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &provider.StatusError{Kind: provider.ErrValidation, StatusCode: status, Body: string(body)}
	}

	var dt debugTokenResponse
	if err := json.Unmarshal(body, &dt); err != nil {
		return fmt.Errorf("%w: failed to parse token info: %v", provider.ErrValidation, err)
	}

	if !dt.Data.IsValid {
		msg := "access token is invalid"
		if dt.Data.Error != nil && dt.Data.Error.Message != "" {
			msg = dt.Data.Error.Message
		}
		return fmt.Errorf("%w: %s", provider.ErrValidation, msg)
	}

	if dt.Data.ExpiresAt != 0 {
		expires := time.Unix(dt.Data.ExpiresAt, 0)
		if !expires.After(c.now()) {
			return fmt.Errorf("%w: access token expired at %s", provider.ErrValidation, expires.UTC().Format(time.RFC3339))
		}
	}

	var missing []string
	for _, scope := range c.requiredScopes {
		if !slices.Contains(dt.Data.Scopes, scope) {
			missing = append(missing, scope)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: access token is missing scopes %v", provider.ErrValidation, missing)
	}

	c.logger.Debug("access token valid", zap.Strings("scopes", dt.Data.Scopes))
	return nil
}

// ValidateAccount checks that the target account resolves and is accessible.
func (c *Client) ValidateAccount(ctx context.Context) error {
	params := url.Values{}
	params.Set("fields", "id,username")

	status, body, err := c.get(ctx, "/"+c.accountID, params)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &provider.StatusError{Kind: provider.ErrValidation, StatusCode: status, Body: string(body)}
	}

	if _, err := decodeID(body); err != nil {
		return fmt.Errorf("%w: %v", provider.ErrValidation, err)
	}
	return nil
}

// Quota fetches the current publishing quota usage.
func (c *Client) Quota(ctx context.Context) (*Quota, error) {
	params := url.Values{}
	params.Set("fields", "quota_usage,config")

	status, body, err := c.get(ctx, "/"+c.accountID+"/content_publishing_limit", params)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &provider.StatusError{Kind: provider.ErrValidation, StatusCode: status, Body: string(body)}
	}

	var qr quotaResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("%w: failed to parse quota: %v", provider.ErrValidation, err)
	}
	if len(qr.Data) == 0 {
		return nil, fmt.Errorf("%w: quota response has no data", provider.ErrValidation)
	}

	return &Quota{Usage: qr.Data[0].QuotaUsage, Total: qr.Data[0].Config.QuotaTotal}, nil
}

// CheckQuota fails when no posts remain in the current window.
func (c *Client) CheckQuota(ctx context.Context) error {
	q, err := c.Quota(ctx)
	if err != nil {
		return err
	}
	if q.Remaining() == 0 {
		return fmt.Errorf("%w: publishing quota exhausted (%d/%d)", provider.ErrValidation, q.Usage, q.Total)
	}
	c.logger.Debug("publishing quota", zap.Int("usage", q.Usage), zap.Int("total", q.Total))
	return nil
}
