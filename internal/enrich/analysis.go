package enrich

import (
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/manash/imgpost/internal/news"
)

const (
	maxTopics      = 3
	maxEvents      = 2
	maxEventLength = 150
)

// Analysis holds the most relevant headlines and event descriptions.
type Analysis struct {
	Topics []string
	Events []string
}

func (a *Analysis) Empty() bool {
	return a == nil || len(a.Topics) == 0
}

var titlePrefixes = []string{"BREAKING:", "UPDATE:"}

// CleanTitle strips a trailing " - Source" attribution and wire prefixes.
func CleanTitle(title string) string {
	title = StripHTML(title)
	if i := strings.Index(title, " - "); i >= 0 {
		title = title[:i]
	}
	for _, p := range titlePrefixes {
		title = strings.ReplaceAll(title, p, "")
	}
	return strings.TrimSpace(title)
}

// StripHTML returns the text content of s with tags removed, entities
// decoded and whitespace collapsed.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return strings.Join(strings.Fields(b.String()), " ")
			}
			return strings.Join(strings.Fields(s), " ")
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// relevance counts how many scoring keywords the text mentions.
func relevance(text string, keywords []string) int {
	lower := strings.ToLower(text)
	score := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			score++
		}
	}
	return score
}

// Analyze extracts relevant topics from titles and events from descriptions.
// Only text mentioning one of keywords is kept; results are deduplicated and
// ordered by how many keywords they mention. An empty keyword list keeps all.
func Analyze(articles []news.Article, keywords []string) *Analysis {
	if len(articles) == 0 {
		return nil
	}

	var topics, events []string
	seenTopic := map[string]bool{}
	seenEvent := map[string]bool{}
	relevant := func(text string) bool {
		return len(keywords) == 0 || news.ContainsAny(text, keywords)
	}

	for _, a := range articles {
		title := CleanTitle(a.Title)
		if title != "" && relevant(title) && !seenTopic[title] {
			seenTopic[title] = true
			topics = append(topics, title)
		}

		desc := StripHTML(a.Description)
		if desc != "" && relevant(desc) {
			desc = truncate(desc, maxEventLength)
			if !seenEvent[desc] {
				seenEvent[desc] = true
				events = append(events, desc)
			}
		}
	}

	byRelevance := func(items []string) {
		sort.SliceStable(items, func(i, j int) bool {
			return relevance(items[i], keywords) > relevance(items[j], keywords)
		})
	}
	byRelevance(topics)
	byRelevance(events)

	if len(topics) > maxTopics {
		topics = topics[:maxTopics]
	}
	if len(events) > maxEvents {
		events = events[:maxEvents]
	}
	return &Analysis{Topics: topics, Events: events}
}
