// Package feed imports RSS, Atom and JSON Feed documents as news records
// for newsdesk.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/robertmeta/newsdesk/model"
	"github.com/robertmeta/newsdesk/news"
)

// DefaultConcurrency limits parallel fetches in FetchAll.
const DefaultConcurrency = 8

// Source describes the feed a batch of records came from.
type Source struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	URL   string `json:"url"`
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithNormalizer sets the normalizer applied to every item.
func WithNormalizer(n *news.Normalizer) Option {
	return func(f *Fetcher) {
		f.normalizer = n
	}
}

// WithTimeout sets the HTTP timeout for remote feeds.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.parser.Client = &http.Client{Timeout: d}
	}
}

// Fetcher handles fetching and parsing feeds.
type Fetcher struct {
	parser     *gofeed.Parser
	normalizer *news.Normalizer
}

// NewFetcher creates a new Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		parser:     gofeed.NewParser(),
		normalizer: news.NewNormalizer(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves and parses a feed from a URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Source, []model.News, error) {
	parsed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return Source{}, nil, fmt.Errorf("failed to fetch feed from %s: %w", url, err)
	}

	src, items := f.convert(parsed, url)
	return src, items, nil
}

// Parse parses feed content from a string.
func (f *Fetcher) Parse(content string) (Source, []model.News, error) {
	if strings.TrimSpace(content) == "" {
		return Source{}, nil, fmt.Errorf("feed content is empty")
	}

	parsed, err := f.parser.ParseString(content)
	if err != nil {
		return Source{}, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	src, items := f.convert(parsed, "")
	return src, items, nil
}

// convert normalizes every item. Later items repeating an id are dropped.
func (f *Fetcher) convert(gf *gofeed.Feed, url string) (Source, []model.News) {
	src := Source{Title: gf.Title, Link: gf.Link, URL: url}
	if src.URL == "" {
		src.URL = gf.FeedLink
	}

	items := make([]model.News, 0, len(gf.Items))
	seen := make(map[string]struct{}, len(gf.Items))
	for _, item := range gf.Items {
		n := f.normalizer.Normalize(ItemToRaw(item))
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		items = append(items, n)
	}
	return src, items
}

// ItemToRaw maps a feed item onto the API's wire shape so it can go through
// the shared normalizer.
func ItemToRaw(item *gofeed.Item) news.Raw {
	raw := news.Raw{
		ID:      news.Text(firstNonEmpty(item.GUID, item.Link)),
		Slug:    news.Text(news.Slugify(item.Title)),
		Title:   news.Text(strings.TrimSpace(item.Title)),
		Excerpt: news.Text(strings.TrimSpace(item.Description)),
		Content: news.Text(firstNonEmpty(item.Content, item.Description)),
		Author:  news.Text(authorOf(item)),
	}

	if image := imageOf(item); image != "" {
		raw.Image, _ = json.Marshal(image)
	}
	if len(item.Categories) > 0 {
		raw.Categories, _ = json.Marshal(item.Categories)
	}

	switch {
	case item.PublishedParsed != nil:
		raw.PublishedAt = news.Text(model.FormatTimestamp(*item.PublishedParsed))
	case item.UpdatedParsed != nil:
		raw.PublishedAt = news.Text(model.FormatTimestamp(*item.UpdatedParsed))
	}
	if item.UpdatedParsed != nil {
		raw.UpdatedAt = news.Text(model.FormatTimestamp(*item.UpdatedParsed))
	}
	return raw
}

func authorOf(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

func imageOf(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ApplyCategory files records that carry no category under category.
func ApplyCategory(items []model.News, category string) {
	category = strings.TrimSpace(category)
	if category == "" {
		return
	}
	for i := range items {
		if len(items[i].Categories) == 0 {
			items[i].Categories = []string{category}
		}
	}
}

// Target is one feed to import and the category its records default to.
type Target struct {
	URL      string
	Category string
}

// Result is the outcome of importing one Target.
type Result struct {
	Target Target
	Source Source
	Items  []model.News
	Err    error
}

// FetchAll fetches targets with at most concurrency requests in flight.
// Results keep the order of targets.
func (f *Fetcher) FetchAll(ctx context.Context, targets []Target, concurrency int) []Result {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			src, items, err := f.Fetch(ctx, t.URL)
			if err == nil {
				ApplyCategory(items, t.Category)
			}
			results[i] = Result{Target: t, Source: src, Items: items, Err: err}
		}()
	}

	wg.Wait()
	return results
}
