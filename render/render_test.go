package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/newsdesk/model"
)

func sampleNews() []model.News {
	return []model.News{
		{
			ID: "1", Slug: "studio-opening", Title: "Studio opening",
			Excerpt: "We opened.", Author: "Ana", Date: "15 May, 2025",
			PublishedAt: "2025-05-15T08:00:00.000Z", Categories: []string{"Studio", "News"},
		},
		{
			ID: "2", Slug: "東京-shoot", Title: "東京での撮影レポート、長いタイトルがここに続きます",
			Excerpt: "Tokyo.", Author: "Ken", Date: "2 April, 2025",
			CreatedAt: "2025-04-02T10:00:00.000Z", Categories: []string{},
		},
	}
}

func TestCards(t *testing.T) {
	cards := Cards(sampleNews(), []string{"2"})
	require.Len(t, cards, 2)

	assert.Equal(t, 0, cards[0].Index)
	assert.False(t, cards[0].Visible)
	assert.Equal(t, 1, cards[1].Index)
	assert.True(t, cards[1].Visible)
	assert.Equal(t, "Ken", cards[1].Author)

	assert.Empty(t, Cards(nil, nil))
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "/news/studio-opening", SlugPath("studio-opening"))
	assert.Equal(t, "/news/category/film%20&%20tv", CategoryPath("film & tv"))
	assert.Equal(t, "/news/archives/2025/5", ArchivePath(2025, 5))

	path, ok := SearchPath("  a/b c ")
	assert.True(t, ok)
	assert.Equal(t, "/news/search/a%2Fb%20c", path)

	_, ok = SearchPath("   ")
	assert.False(t, ok)
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, Cards(sampleNews()[:1], []string{"1"})))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "1", decoded[0]["_id"])
	assert.Equal(t, true, decoded[0]["visible"])
	assert.Contains(t, buf.String(), "\n  ")
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, Cards(sampleNews(), nil)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "DATE"))

	// the slug column starts at the same cell offset on every row
	slugStart := func(line, slug string) int {
		idx := strings.LastIndex(line, slug)
		require.GreaterOrEqual(t, idx, 0)
		return runewidth.StringWidth(line[:idx])
	}
	want := slugStart(lines[0], "SLUG")
	assert.Equal(t, want, slugStart(lines[1], "studio-opening"))
	assert.Equal(t, want, slugStart(lines[2], "東京-shoot"))
	assert.Contains(t, lines[2], "…")
	assert.Contains(t, lines[1], "Studio, News")
}

func TestRSS_RoundTrip(t *testing.T) {
	meta := FeedMeta{
		Title:       "Studio News",
		Link:        "https://example.com/",
		Description: "Latest from the studio",
		Author:      "Studio",
		Updated:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	require.NoError(t, RSS(&buf, meta, sampleNews()))

	parsed, err := gofeed.NewParser().ParseString(buf.String())
	require.NoError(t, err)
	assert.Equal(t, "rss", parsed.FeedType)
	assert.Equal(t, "Studio News", parsed.Title)
	require.Len(t, parsed.Items, 2)

	first := parsed.Items[0]
	assert.Equal(t, "Studio opening", first.Title)
	assert.Equal(t, "https://example.com/news/studio-opening", first.Link)
	assert.Equal(t, "We opened.", first.Description)
	require.NotNil(t, first.PublishedParsed)
	assert.True(t, first.PublishedParsed.Equal(time.Date(2025, 5, 15, 8, 0, 0, 0, time.UTC)))

	second := parsed.Items[1]
	require.NotNil(t, second.PublishedParsed)
	assert.True(t, second.PublishedParsed.Equal(time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)))
}
