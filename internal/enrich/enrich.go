// Package enrich turns an optional topic into a generation prompt and a set
// of hashtags, from news coverage, market headlines or randomized templates.
package enrich

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/manash/imgpost/internal/news"
	"github.com/manash/imgpost/internal/provider"
	"github.com/manash/imgpost/pkg/models"
)

const (
	SourceTemplate = "template"
	SourceNews     = "news"
	SourceFallback = "fallback"
	SourceMarket   = "market"

	// Instagram rejects captions with more than 30 hashtags.
	maxHashtags = 30
)

type Enricher interface {
	Enrich(ctx context.Context, topic string) (*models.Enrichment, error)
}

type NewsSearcher interface {
	Search(ctx context.Context, q news.SearchQuery) ([]news.Article, error)
}

type MarketFeed interface {
	MarketNews(ctx context.Context) ([]news.MarketItem, error)
}

// Theme maps a keyword found in the news to a phrase for the summary and
// extra hashtags.
type Theme struct {
	Keyword  string
	Phrase   string
	Hashtags []string
}

var DefaultThemes = []Theme{
	{Keyword: "poll", Phrase: "shifting opinion polls", Hashtags: []string{"polls"}},
	{Keyword: "refugee", Phrase: "refugee support", Hashtags: []string{"refugees"}},
	{Keyword: "opposition", Phrase: "the opposition's challenge", Hashtags: []string{"opposition"}},
	{Keyword: "president", Phrase: "the race for the presidency", Hashtags: []string{"president"}},
	{Keyword: "debate", Phrase: "a heated debate", Hashtags: []string{"debate"}},
	{Keyword: "econom", Phrase: "economic worries", Hashtags: []string{"economy"}},
}

var (
	newsBaseHashtags   = []string{"politics", "news", "currentevents", "democracy", "editorialcartoon"}
	marketBaseHashtags = []string{"stockmarket", "finance", "markets", "investing", "financialnews", "economy"}

	fallbackPrompts = []string{
		"Create a political cartoon about %s, focusing on the democratic process and political change",
		"Create a political cartoon about %s, showing the competition between political parties",
	}

	stopWords = map[string]bool{
		"the": true, "and": true, "for": true, "with": true, "about": true,
		"from": true, "into": true, "over": true, "this": true, "that": true,
	}
)

type NewsOptions struct {
	Country  string
	Category string
	// Terms are searched in addition to the topic itself.
	Terms []string
	// Keywords decide relevance. Defaults to the words of the topic.
	Keywords []string
	Themes   []Theme
}

// NewsEnricher builds a prompt from recent coverage of a topic. When nothing
// relevant is found it falls back to a canned prompt about the topic.
type NewsEnricher struct {
	searcher NewsSearcher
	opts     NewsOptions
	rng      *rand.Rand
	logger   *zap.Logger
}

func NewNewsEnricher(searcher NewsSearcher, opts NewsOptions, rng *rand.Rand, logger *zap.Logger) *NewsEnricher {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Themes == nil {
		opts.Themes = DefaultThemes
	}
	return &NewsEnricher{searcher: searcher, opts: opts, rng: rng, logger: logger.Named("enrich")}
}

func (e *NewsEnricher) Enrich(ctx context.Context, topic string) (*models.Enrichment, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required for news enrichment", provider.ErrValidation)
	}

	keywords := e.opts.Keywords
	if len(keywords) == 0 {
		keywords = TopicWords(topic)
	}

	articles, err := e.searcher.Search(ctx, news.SearchQuery{
		Country:  e.opts.Country,
		Category: e.opts.Category,
		Terms:    append([]string{topic}, e.opts.Terms...),
		Keywords: keywords,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("news search failed, using fallback prompt", zap.Error(err))
		return e.fallback(topic), nil
	}
	if len(articles) == 0 {
		e.logger.Info("no news articles found, using fallback prompt", zap.String("topic", topic))
		return e.fallback(topic), nil
	}

	analysis := Analyze(articles, keywords)
	if analysis.Empty() {
		e.logger.Info("no relevant headlines, using fallback prompt", zap.String("topic", topic))
		return e.fallback(topic), nil
	}

	themes := e.matchThemes(analysis)
	summary := Summarize(analysis, themes)
	visual := VisualDescription(e.rng)

	hashtags := append([]string{}, newsBaseHashtags...)
	hashtags = append(hashtags, TopicWords(topic)...)
	for _, th := range themes {
		hashtags = append(hashtags, th.Hashtags...)
	}

	e.logger.Debug("news analysis",
		zap.Strings("topics", analysis.Topics),
		zap.Strings("events", analysis.Events),
		zap.Int("themes", len(themes)),
	)

	return &models.Enrichment{
		Prompt:   summary + ", featuring " + visual,
		Summary:  summary,
		Hashtags: uniqueTags(hashtags),
		Source:   SourceNews,
	}, nil
}

func (e *NewsEnricher) matchThemes(a *Analysis) []Theme {
	content := strings.ToLower(strings.Join(append(append([]string{}, a.Topics...), a.Events...), " "))
	var out []Theme
	for _, th := range e.opts.Themes {
		if th.Keyword != "" && strings.Contains(content, strings.ToLower(th.Keyword)) {
			out = append(out, th)
		}
	}
	return out
}

func (e *NewsEnricher) fallback(topic string) *models.Enrichment {
	prompt := fmt.Sprintf(fallbackPrompts[e.rng.IntN(len(fallbackPrompts))], topic)
	hashtags := append(append([]string{}, newsBaseHashtags...), TopicWords(topic)...)
	return &models.Enrichment{
		Prompt:   prompt,
		Hashtags: uniqueTags(hashtags),
		Source:   SourceFallback,
	}
}

// Summarize writes a one-line brief from the leading headline and up to two
// matched themes.
func Summarize(a *Analysis, themes []Theme) string {
	summary := "Create a political cartoon about " + a.Topics[0]
	var phrases []string
	for _, th := range themes {
		if len(phrases) == 2 {
			break
		}
		phrases = append(phrases, th.Phrase)
	}
	if len(phrases) > 0 {
		summary += ", with focus on " + strings.Join(phrases, " and ")
	}
	return summary
}

// MarketEnricher builds a photorealistic prompt from today's market news.
type MarketEnricher struct {
	feed   MarketFeed
	logger *zap.Logger
}

func NewMarketEnricher(feed MarketFeed, logger *zap.Logger) *MarketEnricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketEnricher{feed: feed, logger: logger.Named("enrich")}
}

// Enrich uses the newest headline, or the newest one mentioning topic when
// a topic is given and any headline matches it.
func (e *MarketEnricher) Enrich(ctx context.Context, topic string) (*models.Enrichment, error) {
	items, err := e.feed.MarketNews(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market news: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no market news published today", provider.ErrNews)
	}

	item := items[0]
	if words := TopicWords(topic); len(words) > 0 {
		for _, it := range items {
			if news.ContainsAny(it.Title+" "+it.Summary, words) {
				item = it
				break
			}
		}
	}

	e.logger.Info("market headline selected", zap.String("title", item.Title), zap.Time("published", item.Published))

	hashtags := append(append([]string{}, marketBaseHashtags...), TopicWords(topic)...)
	return &models.Enrichment{
		Prompt:   MarketPrompt(item.Title, item.Summary),
		Summary:  item.Title,
		Hashtags: uniqueTags(hashtags),
		Source:   SourceMarket,
	}, nil
}

// MarketPrompt turns a headline and summary into a photorealistic prompt,
// dropping attribution phrases.
func MarketPrompt(title, summary string) string {
	text := StripHTML(title) + ". " + StripHTML(summary)
	text = strings.ReplaceAll(text, "according to", "")
	text = strings.ReplaceAll(text, "reported", "")
	text = strings.Join(strings.Fields(text), " ")
	return "Photorealistic visualization of " + text + ", professional financial photography style"
}

// TopicWords lowercases topic and splits it into hashtag-safe words, dropping
// short words and stop words.
func TopicWords(topic string) []string {
	fields := strings.FieldsFunc(strings.ToLower(topic), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return uniqueTags(out)
}

func uniqueTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) == maxHashtags {
			break
		}
	}
	return out
}

type Mode string

const (
	ModeTemplate Mode = "template"
	ModeNews     Mode = "news"
	ModeMarket   Mode = "market"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeTemplate, ModeNews, ModeMarket:
		return m, nil
	case "":
		return ModeNews, nil
	default:
		return "", fmt.Errorf("%w: unknown enrichment mode %q (want template, news or market)", provider.ErrValidation, s)
	}
}

// Service picks an Enricher per call. Market mode always uses market news.
// Otherwise an empty topic, template mode or a missing news client selects
// the template generator.
type Service struct {
	mode      Mode
	templates Enricher
	news      Enricher
	market    Enricher
	logger    *zap.Logger
}

func NewService(mode Mode, templates, newsEnricher, market Enricher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if templates == nil {
		templates = NewTemplateGenerator(nil)
	}
	return &Service{
		mode:      mode,
		templates: templates,
		news:      newsEnricher,
		market:    market,
		logger:    logger.Named("enrich"),
	}
}

func (s *Service) Enrich(ctx context.Context, topic string) (*models.Enrichment, error) {
	topic = strings.TrimSpace(topic)

	switch {
	case s.mode == ModeMarket:
		if s.market == nil {
			return nil, fmt.Errorf("%w: market enrichment needs an Alpha Vantage API key", provider.ErrAPIKeyRequired)
		}
		return s.market.Enrich(ctx, topic)
	case topic == "" || s.mode == ModeTemplate:
		return s.templates.Enrich(ctx, topic)
	case s.news == nil:
		s.logger.Warn("no news client configured, using templates", zap.String("topic", topic))
		return s.templates.Enrich(ctx, topic)
	default:
		return s.news.Enrich(ctx, topic)
	}
}
