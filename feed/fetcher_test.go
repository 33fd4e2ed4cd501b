package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/newsdesk/model"
	"github.com/robertmeta/newsdesk/news"
)

var fetchedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testFetcher() *Fetcher {
	normalizer := news.NewNormalizer(news.WithClock(func() time.Time { return fetchedAt }))
	return NewFetcher(WithNormalizer(normalizer), WithTimeout(5*time.Second))
}

func TestFetcher_ParseRSS2(t *testing.T) {
	data, err := os.ReadFile("../testdata/rss2.xml")
	require.NoError(t, err)

	src, items, err := testFetcher().Parse(string(data))
	require.NoError(t, err)

	assert.Equal(t, "Test RSS Feed", src.Title)
	assert.Equal(t, "https://example.com", src.Link)

	require.Len(t, items, 3, "the repeated guid is dropped")

	first := items[0]
	assert.Equal(t, "entry-1", first.ID)
	assert.Equal(t, "first-test-entry", first.Slug)
	assert.Equal(t, "First Test Entry", first.Title)
	assert.Equal(t, "This is the first test entry.", first.Excerpt)
	assert.Equal(t, "This is the first test entry.", first.Content)
	assert.Equal(t, "Jane Editor", first.Author)
	assert.Equal(t, "https://example.com/img/entry-1.jpg", first.Image)
	assert.Equal(t, []string{"Studio", "Behind the scenes"}, first.Categories)
	assert.Equal(t, "2024-01-15T10:00:00.000Z", first.PublishedAt)
	assert.Equal(t, "15 Jan, 2024", first.Date)
	assert.True(t, first.Published)

	second := items[1]
	assert.Equal(t, "Second summary", second.Excerpt)
	assert.Contains(t, second.Content, "Full second entry content")
	assert.Empty(t, second.Categories)
	assert.NotNil(t, second.Categories)
}

func TestFetcher_ItemWithoutDates(t *testing.T) {
	data, err := os.ReadFile("../testdata/rss2.xml")
	require.NoError(t, err)

	_, items, err := testFetcher().Parse(string(data))
	require.NoError(t, err)

	third := items[2]
	assert.Equal(t, "https://example.com/entry-3", third.ID, "link stands in for a missing guid")
	assert.Equal(t, "third-test-entry", third.Slug)
	assert.Equal(t, model.DefaultAuthor, third.Author)
	assert.Equal(t, model.DefaultExcerpt, third.Excerpt)
	assert.Equal(t, model.PlaceholderImage, third.Image)
	assert.Equal(t, "2025-06-01T12:00:00.000Z", third.PublishedAt)
	assert.Equal(t, model.DateUnavailable, third.Date)
}

func TestFetcher_ParseAtom(t *testing.T) {
	data, err := os.ReadFile("../testdata/atom.xml")
	require.NoError(t, err)

	src, items, err := testFetcher().Parse(string(data))
	require.NoError(t, err)

	assert.Equal(t, "Test Atom Feed", src.Title)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "atom-entry-1", first.ID)
	assert.Equal(t, "first-atom-entry", first.Slug)
	assert.Equal(t, "Ken Writer", first.Author)
	assert.Equal(t, []string{"Film"}, first.Categories)
	assert.Equal(t, "Atom summary one", first.Excerpt)
	assert.Contains(t, first.Content, "Atom content one")
	assert.Equal(t, "2024-01-18T08:00:00.000Z", first.PublishedAt)
	assert.Equal(t, "2024-01-20T12:00:00.000Z", first.UpdatedAt)

	assert.Equal(t, "2024-01-19T07:00:00.000Z", items[1].PublishedAt, "updated stands in for a missing published date")
}

func TestFetcher_ParseInvalidFeed(t *testing.T) {
	fetcher := testFetcher()

	_, _, err := fetcher.Parse("<invalid>xml</broken>")
	assert.Error(t, err, "Should error on invalid XML")

	_, _, err = fetcher.Parse("  ")
	assert.Error(t, err, "Should error on empty content")

	_, _, err = fetcher.Parse("<?xml version='1.0'?><root><item>not a feed</item></root>")
	assert.Error(t, err, "Should error on non-feed XML")
}

func TestApplyCategory(t *testing.T) {
	items := []model.News{
		{ID: "1", Categories: []string{"Film"}},
		{ID: "2", Categories: []string{}},
	}

	ApplyCategory(items, "  ")
	assert.Empty(t, items[1].Categories)

	ApplyCategory(items, "Imported")
	assert.Equal(t, []string{"Film"}, items[0].Categories)
	assert.Equal(t, []string{"Imported"}, items[1].Categories)
}

func TestFetcher_FetchAll(t *testing.T) {
	data, err := os.ReadFile("../testdata/rss2.xml")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rss" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write(data)
	}))
	defer srv.Close()

	targets := []Target{
		{URL: srv.URL + "/missing"},
		{URL: srv.URL + "/rss", Category: "Imported"},
	}
	results := testFetcher().FetchAll(context.Background(), targets, 0)
	require.Len(t, results, 2)

	assert.Error(t, results[0].Err)
	assert.Equal(t, targets[0], results[0].Target)

	require.NoError(t, results[1].Err)
	assert.Equal(t, srv.URL+"/rss", results[1].Source.URL)
	require.Len(t, results[1].Items, 3)
	assert.Equal(t, []string{"Studio", "Behind the scenes"}, results[1].Items[0].Categories)
	assert.Equal(t, []string{"Imported"}, results[1].Items[1].Categories)
}

func TestFetcher_FetchCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := testFetcher().Fetch(ctx, srv.URL)
	assert.Error(t, err)
}
