package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/manash/imgpost/internal/provider"
)

const (
	defaultAlphaVantageURL = "https://www.alphavantage.co"

	// PublishedLayout is the timestamp format of the NEWS_SENTIMENT feed.
	PublishedLayout = "20060102T150405"

	marketFeedLimit = 50
	MarketNewsCount = 5
)

// MarketItem is one market headline from the sentiment feed.
type MarketItem struct {
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	URL       string    `json:"url"`
	Published time.Time `json:"published"`
}

type sentimentResponse struct {
	Feed []struct {
		Title         string `json:"title"`
		Summary       string `json:"summary"`
		URL           string `json:"url"`
		TimePublished string `json:"time_published"`
	} `json:"feed"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

type AlphaVantageClient struct {
	apiKey     string
	baseURL    string
	topics     string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

func NewAlphaVantageClient(cfg *provider.Config, opts ...Option) (*AlphaVantageClient, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAlphaVantageURL
	}

	o := buildOptions(opts)
	return &AlphaVantageClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		topics:  "financial_markets",
		httpClient: &http.Client{
			Timeout: cfg.Timeout(defaultTimeout),
		},
		logger: o.logger.Named("alphavantage"),
		now:    o.now,
	}, nil
}

// MarketNews returns up to five of today's market headlines, newest first.
// Items with a missing or unparseable timestamp are skipped.
func (c *AlphaVantageClient) MarketNews(ctx context.Context) ([]MarketItem, error) {
	params := url.Values{}
	params.Set("function", "NEWS_SENTIMENT")
	params.Set("topics", c.topics)
	params.Set("sort", "LATEST")
	params.Set("limit", strconv.Itoa(marketFeedLimit))
	params.Set("apikey", c.apiKey)
	u := c.baseURL + "/query?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	provider.LogRequest(c.logger, req.Method, u, req.Header, nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", provider.ErrNews, provider.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", provider.ErrNews, err)
	}

	provider.LogResponse(c.logger, resp.StatusCode, resp.Header, body)

	if resp.StatusCode != http.StatusOK {
		return nil, &provider.StatusError{Kind: provider.ErrNews, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed sentimentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", provider.ErrNews, err)
	}
	if parsed.Feed == nil {
		// Rate limit notices arrive as 200 responses without a feed.
		note := parsed.Note
		if note == "" {
			note = parsed.Information
		}
		if note != "" {
			c.logger.Warn("alpha vantage notice", zap.String("note", note))
			return nil, fmt.Errorf("%w: %s", provider.ErrRateLimited, note)
		}
		return nil, fmt.Errorf("%w: response has no feed", provider.ErrNews)
	}

	now := c.now()
	var items []MarketItem
	for _, entry := range parsed.Feed {
		if entry.TimePublished == "" {
			continue
		}
		published, err := time.ParseInLocation(PublishedLayout, entry.TimePublished, now.Location())
		if err != nil {
			c.logger.Debug("skipping article", zap.String("time_published", entry.TimePublished), zap.Error(err))
			continue
		}
		if !sameDay(published, now) {
			continue
		}

		title := entry.Title
		if title == "" {
			title = "No title available"
		}
		summary := entry.Summary
		if summary == "" {
			summary = "No summary available"
		}
		items = append(items, MarketItem{Title: title, Summary: summary, URL: entry.URL, Published: published})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})
	if len(items) > MarketNewsCount {
		items = items[:MarketNewsCount]
	}

	c.logger.Info("market news", zap.Int("today", len(items)))
	return items, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
