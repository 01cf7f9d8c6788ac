package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manash/imgpost/internal/provider"
)

var now = time.Date(2024, 10, 12, 15, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func TestNewsAPIClient_RequiresKey(t *testing.T) {
	_, err := NewNewsAPIClient(&provider.Config{})
	assert.ErrorIs(t, err, provider.ErrAPIKeyRequired)
}

func TestNewsAPIClient_Everything(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/everything", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "election", q.Get("q"))
		assert.Equal(t, "2024-10-09", q.Get("from"))
		assert.Equal(t, "2024-10-12", q.Get("to"))
		assert.Equal(t, "relevancy", q.Get("sortBy"))
		assert.Equal(t, "key", q.Get("apiKey"))
		w.Write([]byte(`{"status":"ok","articles":[{"source":{"name":"Wire"},"title":"Election day","description":"Voters queue","url":"https://x/1","publishedAt":"2024-10-12T08:00:00Z"}]}`))
	}))
	defer server.Close()

	c, err := NewNewsAPIClient(&provider.Config{APIKey: "key", BaseURL: server.URL}, WithClock(clock))
	require.NoError(t, err)

	articles, err := c.Everything(context.Background(), EverythingQuery{
		Query:  "election",
		From:   now.Add(-searchWindow),
		To:     now,
		SortBy: "relevancy",
	})
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Election day", articles[0].Title)
	assert.Equal(t, "Wire", articles[0].Source)
	assert.Equal(t, time.Date(2024, 10, 12, 8, 0, 0, 0, time.UTC), articles[0].PublishedAt)
}

func TestNewsAPIClient_Everything_RequiresQuery(t *testing.T) {
	c, err := NewNewsAPIClient(&provider.Config{APIKey: "key", BaseURL: "http://unused"})
	require.NoError(t, err)
	_, err = c.Everything(context.Background(), EverythingQuery{})
	assert.ErrorIs(t, err, provider.ErrValidation)
}

func TestNewsAPIClient_ErrorStatus(t *testing.T) {
	body := `{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(body))
	}))
	defer server.Close()

	c, err := NewNewsAPIClient(&provider.Config{APIKey: "key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = c.TopHeadlines(context.Background(), HeadlinesQuery{Country: "us"})
	assert.ErrorIs(t, err, provider.ErrNews)
	assert.Equal(t, body, provider.Message(err))
}

func TestNewsAPIClient_Search(t *testing.T) {
	var mu sync.Mutex
	var terms []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/top-headlines":
			assert.Equal(t, "pl", r.URL.Query().Get("country"))
			w.Write([]byte(`{"status":"ok","articles":[
				{"title":"Markets open higher"},
				{"title":"Poland votes today - Wire"}
			]}`))
		case "/everything":
			term := r.URL.Query().Get("q")
			mu.Lock()
			terms = append(terms, term)
			mu.Unlock()
			switch term {
			case "broken":
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"status":"error"}`))
			default:
				w.Write([]byte(`{"status":"ok","articles":[
					{"title":"POLAND VOTES TODAY - Wire","description":"duplicate"},
					{"title":"Football results","description":"sport"},
					{"title":"Turnout record","description":"Election turnout in Poland"},
					{"title":"","description":"election without title"}
				]}`))
			}
		}
	}))
	defer server.Close()

	c, err := NewNewsAPIClient(&provider.Config{APIKey: "key", BaseURL: server.URL}, WithClock(clock))
	require.NoError(t, err)

	articles, err := c.Search(context.Background(), SearchQuery{
		Country:  "pl",
		Terms:    []string{"poland election", "broken"},
		Keywords: []string{"poland", "election"},
	})
	require.NoError(t, err)

	var titles []string
	for _, a := range articles {
		titles = append(titles, a.Title)
	}
	assert.Equal(t, []string{"Markets open higher", "Poland votes today - Wire", "Turnout record"}, titles)
	assert.Equal(t, []string{"poland election", "broken"}, terms)
}

func TestNewsAPIClient_Search_AllCallsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"status":"error","code":"rateLimited"}`))
	}))
	defer server.Close()

	c, err := NewNewsAPIClient(&provider.Config{APIKey: "key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = c.Search(context.Background(), SearchQuery{Terms: []string{"a", "b"}})
	assert.ErrorIs(t, err, provider.ErrNews)
}

func TestFilterRelevant(t *testing.T) {
	articles := []Article{
		{Title: "Tusk speaks", Description: ""},
		{Title: "Weather", Description: "Sunny in the ELECTION district"},
		{Title: "Sport", Description: "Goals"},
	}
	got := FilterRelevant(articles, []string{"tusk", "election"})
	require.Len(t, got, 2)
	assert.Equal(t, "Tusk speaks", got[0].Title)
	assert.Equal(t, "Weather", got[1].Title)

	assert.Len(t, FilterRelevant(articles, nil), 3)
}

func TestAlphaVantageClient_MarketNews(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "NEWS_SENTIMENT", q.Get("function"))
		assert.Equal(t, "financial_markets", q.Get("topics"))
		assert.Equal(t, "LATEST", q.Get("sort"))
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "av-key", q.Get("apikey"))
		w.Write([]byte(`{"feed":[
			{"title":"A","summary":"a","time_published":"20241012T090000"},
			{"title":"B","summary":"b","time_published":"20241012T140000"},
			{"title":"Yesterday","summary":"y","time_published":"20241011T230000"},
			{"title":"Bad","summary":"x","time_published":"not-a-time"},
			{"title":"NoTime","summary":"x"},
			{"title":"C","summary":"c","time_published":"20241012T100000"},
			{"title":"D","summary":"d","time_published":"20241012T110000"},
			{"title":"E","summary":"e","time_published":"20241012T120000"},
			{"title":"","summary":"","time_published":"20241012T080000"}
		]}`))
	}))
	defer server.Close()

	c, err := NewAlphaVantageClient(&provider.Config{APIKey: "av-key", BaseURL: server.URL}, WithClock(clock))
	require.NoError(t, err)

	items, err := c.MarketNews(context.Background())
	require.NoError(t, err)
	require.Len(t, items, MarketNewsCount)

	var titles []string
	for _, item := range items {
		titles = append(titles, item.Title)
	}
	assert.Equal(t, []string{"B", "E", "D", "C", "A"}, titles)
	assert.Equal(t, time.Date(2024, 10, 12, 14, 0, 0, 0, time.UTC), items[0].Published)
}

func TestAlphaVantageClient_MarketNews_Placeholders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"feed":[{"time_published":"20241012T080000"}]}`))
	}))
	defer server.Close()

	c, err := NewAlphaVantageClient(&provider.Config{APIKey: "av-key", BaseURL: server.URL}, WithClock(clock))
	require.NoError(t, err)

	items, err := c.MarketNews(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "No title available", items[0].Title)
	assert.Equal(t, "No summary available", items[0].Summary)
}

func TestAlphaVantageClient_MarketNews_Notice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note":"Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`))
	}))
	defer server.Close()

	c, err := NewAlphaVantageClient(&provider.Config{APIKey: "av-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = c.MarketNews(context.Background())
	assert.ErrorIs(t, err, provider.ErrRateLimited)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestAlphaVantageClient_MarketNews_NoFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, err := NewAlphaVantageClient(&provider.Config{APIKey: "av-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = c.MarketNews(context.Background())
	assert.ErrorIs(t, err, provider.ErrNews)
}
