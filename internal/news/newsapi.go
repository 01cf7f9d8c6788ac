// Package news fetches articles from NewsAPI and market headlines from
// Alpha Vantage for prompt enrichment.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/manash/imgpost/internal/provider"
)

const (
	defaultNewsAPIURL = "https://newsapi.org/v2"
	defaultTimeout    = 30 * time.Second

	// searchWindow is how far back Search looks for articles.
	searchWindow = 3 * 24 * time.Hour
)

// Article is a single news result.
type Article struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

type HeadlinesQuery struct {
	Country  string
	Category string
	PageSize int
}

type EverythingQuery struct {
	Query    string
	From     time.Time
	To       time.Time
	SortBy   string
	Language string
	PageSize int
}

// SearchQuery drives Search. Headline results are kept as-is; results of
// each term search are kept only if their title or description mentions one
// of Keywords. An empty Keywords list keeps everything.
type SearchQuery struct {
	Country  string
	Category string
	Terms    []string
	Keywords []string
}

type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type NewsAPIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

func NewNewsAPIClient(cfg *provider.Config, opts ...Option) (*NewsAPIClient, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultNewsAPIURL
	}

	o := buildOptions(opts)
	return &NewsAPIClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(defaultTimeout),
		},
		logger: o.logger.Named("newsapi"),
		now:    o.now,
	}, nil
}

func (c *NewsAPIClient) TopHeadlines(ctx context.Context, q HeadlinesQuery) ([]Article, error) {
	params := url.Values{}
	if q.Country != "" {
		params.Set("country", q.Country)
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	return c.fetch(ctx, "/top-headlines", params)
}

func (c *NewsAPIClient) Everything(ctx context.Context, q EverythingQuery) ([]Article, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, fmt.Errorf("%w: search query is required", provider.ErrValidation)
	}

	params := url.Values{}
	params.Set("q", q.Query)
	if !q.From.IsZero() {
		params.Set("from", q.From.Format(time.DateOnly))
	}
	if !q.To.IsZero() {
		params.Set("to", q.To.Format(time.DateOnly))
	}
	if q.SortBy != "" {
		params.Set("sortBy", q.SortBy)
	}
	if q.Language != "" {
		params.Set("language", q.Language)
	}
	if q.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	return c.fetch(ctx, "/everything", params)
}

// Search collects top headlines and a relevance-sorted search per term over
// the last three days. A failing call is logged and skipped; an error is
// returned only when every call failed. Results are deduplicated by title,
// case-insensitively, keeping the first occurrence.
func (c *NewsAPIClient) Search(ctx context.Context, q SearchQuery) ([]Article, error) {
	var (
		all      []Article
		failures int
		lastErr  error
	)
	calls := 0

	if q.Country != "" || q.Category != "" {
		calls++
		headlines, err := c.TopHeadlines(ctx, HeadlinesQuery{Country: q.Country, Category: q.Category, PageSize: 10})
		if err != nil {
			failures++
			lastErr = err
			c.logger.Warn("top headlines failed", zap.Error(err))
		} else {
			c.logger.Debug("top headlines", zap.Int("count", len(headlines)))
			all = append(all, headlines...)
		}
	}

	to := c.now()
	from := to.Add(-searchWindow)
	for _, term := range q.Terms {
		if ctx.Err() != nil {
			return Dedupe(all), ctx.Err()
		}
		calls++
		articles, err := c.Everything(ctx, EverythingQuery{
			Query:    term,
			From:     from,
			To:       to,
			SortBy:   "relevancy",
			Language: "en",
			PageSize: 5,
		})
		if err != nil {
			failures++
			lastErr = err
			c.logger.Warn("news search failed", zap.String("term", term), zap.Error(err))
			continue
		}

		relevant := FilterRelevant(articles, q.Keywords)
		c.logger.Debug("news search", zap.String("term", term), zap.Int("found", len(articles)), zap.Int("relevant", len(relevant)))
		all = append(all, relevant...)
	}

	if calls > 0 && failures == calls {
		return nil, lastErr
	}
	return Dedupe(all), nil
}

func (c *NewsAPIClient) fetch(ctx context.Context, path string, params url.Values) ([]Article, error) {
	params.Set("apiKey", c.apiKey)
	u := c.baseURL + path + "?" + params.Encode()

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

	var parsed newsAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", provider.ErrNews, err)
	}
	if parsed.Status != "" && parsed.Status != "ok" {
		return nil, fmt.Errorf("%w: %s: %s", provider.ErrNews, parsed.Code, parsed.Message)
	}

	articles := make([]Article, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		articles = append(articles, Article{
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			Source:      a.Source.Name,
			PublishedAt: a.PublishedAt,
		})
	}
	return articles, nil
}

// FilterRelevant keeps articles whose title or description contains any keyword.
func FilterRelevant(articles []Article, keywords []string) []Article {
	if len(keywords) == 0 {
		return articles
	}
	var out []Article
	for _, a := range articles {
		if ContainsAny(a.Title+" "+a.Description, keywords) {
			out = append(out, a)
		}
	}
	return out
}

// ContainsAny reports whether text mentions any keyword, ignoring case.
func ContainsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Dedupe drops untitled articles and repeated titles.
func Dedupe(articles []Article) []Article {
	seen := make(map[string]bool, len(articles))
	var out []Article
	for _, a := range articles {
		key := strings.ToLower(strings.TrimSpace(a.Title))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}
