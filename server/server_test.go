package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/newsdesk/model"
	"github.com/robertmeta/newsdesk/news"
	"github.com/robertmeta/newsdesk/render"
	"github.com/robertmeta/newsdesk/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seed returns n published articles, newest first, spread one day apart
// from 2025-05-20 backwards.
func seed(n int) []model.News {
	items := make([]model.News, 0, n)
	start := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
	for i := range n {
		published := start.AddDate(0, 0, -i)
		category := "Studio"
		if i%2 == 1 {
			category = "Film"
		}
		items = append(items, model.News{
			ID:          fmt.Sprintf("id-%d", i),
			Slug:        fmt.Sprintf("story-%d", i),
			Title:       fmt.Sprintf("Story %d", i),
			Excerpt:     "Excerpt",
			Content:     "First paragraph\nSecond paragraph",
			Author:      "Desk",
			PublishedAt: model.FormatTimestamp(published),
			Date:        model.FormatDate(published),
			Categories:  []string{category},
			Published:   true,
		})
	}
	return items
}

func newTestServer(t *testing.T, src news.Source) *Server {
	t.Helper()
	return New(src, Config{
		PageSize: 6,
		Feed: render.FeedMeta{
			Title: "Studio News",
			Link:  "https://studio.example.com",
		},
	}, quietLogger())
}

func storeServer(t *testing.T, n int) *Server {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.SaveNews(context.Background(), seed(n)...)
	require.NoError(t, err)
	return newTestServer(t, st)
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["error"]
}

// failingSource fails every call with err.
type failingSource struct {
	err   error
	calls atomic.Int32
}

func (f *failingSource) List(context.Context, news.ListOptions) ([]model.News, error) {
	f.calls.Add(1)
	return nil, f.err
}

func (f *failingSource) Get(context.Context, string) (model.News, error) {
	f.calls.Add(1)
	return model.News{}, f.err
}

func (f *failingSource) Search(context.Context, string) ([]model.News, error) {
	f.calls.Add(1)
	return nil, f.err
}

func (f *failingSource) Archives(context.Context) ([]model.Archive, error) {
	f.calls.Add(1)
	return nil, f.err
}

func (f *failingSource) ArchiveNews(context.Context, int, int) ([]model.News, error) {
	f.calls.Add(1)
	return nil, f.err
}

func (f *failingSource) Categories(context.Context) ([]string, error) {
	f.calls.Add(1)
	return nil, f.err
}

func TestHealth(t *testing.T) {
	rec := get(t, storeServer(t, 0), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListNews_Pagination(t *testing.T) {
	s := storeServer(t, 8)

	rec := get(t, s, "/news")
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[ListResponse](t, rec)
	assert.Equal(t, "ready", first.State.String())
	assert.Equal(t, 1, first.Page.Page)
	assert.Equal(t, 2, first.Page.TotalPages)
	assert.Len(t, first.Page.Items, 6)
	assert.True(t, first.ShowPager)
	assert.True(t, first.HasNext)
	assert.False(t, first.HasPrevious)
	require.Len(t, first.Cards, 6)
	assert.Equal(t, "story-0", first.Cards[0].Slug)
	assert.True(t, first.Cards[0].Visible)
	assert.Equal(t, 5, first.Cards[5].Index)

	rec = get(t, s, "/news?page=2")
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[ListResponse](t, rec)
	assert.Equal(t, 2, second.Page.Page)
	assert.Equal(t, []string{"id-6", "id-7"}, second.VisibleIDs)
	assert.True(t, second.HasPrevious)
	assert.False(t, second.HasNext)
}

func TestListNews_BadPage(t *testing.T) {
	s := storeServer(t, 3)

	rec := get(t, s, "/news?page=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "page must be a positive integer", errorOf(t, rec))

	rec = get(t, s, "/news?page=3")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Page 3 does not exist", errorOf(t, rec))
}

func TestListNews_Empty(t *testing.T) {
	rec := get(t, storeServer(t, 0), "/news")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[ListResponse](t, rec)
	assert.Equal(t, "No news articles found. Please check the API or database.", resp.Empty)
	assert.False(t, resp.ShowPager)
	assert.Empty(t, resp.Cards)
}

func TestListNews_SourceFailure(t *testing.T) {
	s := newTestServer(t, &failingSource{err: errors.New("connection refused")})

	rec := get(t, s, "/news")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Failed to load news articles. The API may have returned no data.", errorOf(t, rec))
}

func TestArchives(t *testing.T) {
	s := storeServer(t, 25)

	rec := get(t, s, "/news/archives")
	require.Equal(t, http.StatusOK, rec.Code)
	archives := decode[[]model.Archive](t, rec)
	require.Len(t, archives, 2)
	assert.Equal(t, 5, archives[0].Month)
	assert.Equal(t, 20, archives[0].Count)
	assert.Equal(t, 4, archives[1].Month)
	assert.Equal(t, 5, archives[1].Count)

	rec = get(t, s, "/news/archives/2025/4")
	require.Equal(t, http.StatusOK, rec.Code)
	bucket := decode[ArchiveResponse](t, rec)
	assert.Equal(t, "Archive: April 2025", bucket.Heading)
	assert.Equal(t, 5, bucket.Page.Total)
	require.Len(t, bucket.Archives, 2)
	assert.False(t, bucket.Archives[0].Active)
	assert.True(t, bucket.Archives[1].Active)
	assert.Len(t, bucket.Cards, 5)
}

func TestArchives_BadPeriod(t *testing.T) {
	s := storeServer(t, 2)

	rec := get(t, s, "/news/archives/2025/may")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, s, "/news/archives/2025/13")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Failed to load news articles for this period.", errorOf(t, rec))
}

func TestSearch(t *testing.T) {
	s := storeServer(t, 3)

	rec := get(t, s, "/news/search/story%201")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ListResponse](t, rec)
	assert.Equal(t, `Search Results for "story 1"`, resp.Heading)
	assert.Equal(t, []string{"id-1"}, resp.VisibleIDs)

	rec = get(t, s, "/news/search/nothing")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[ListResponse](t, rec)
	assert.Equal(t, `No results found for "nothing".`, resp.Empty)

	rec = get(t, s, "/news/search/%20")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Search query is empty or invalid", errorOf(t, rec))
}

func TestSearch_StatusFailure(t *testing.T) {
	src := &failingSource{err: &news.Error{Kind: news.KindStatus, Status: 503, Message: "Service Unavailable"}}
	s := newTestServer(t, src)

	rec := get(t, s, "/news/search/film")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Failed to fetch search results: Service Unavailable", errorOf(t, rec))
}

func TestCategory(t *testing.T) {
	s := storeServer(t, 4)

	rec := get(t, s, "/news/category/Film")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ListResponse](t, rec)
	assert.Equal(t, "Category: Film", resp.Heading)
	assert.Equal(t, []string{"id-1", "id-3"}, resp.VisibleIDs)

	rec = get(t, s, "/news/category/Music")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[ListResponse](t, rec)
	assert.Equal(t, `No news found for category "Music".`, resp.Empty)
}

func TestDetail(t *testing.T) {
	s := storeServer(t, 5)

	rec := get(t, s, "/news/story-2")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		State      string       `json:"state"`
		Article    model.News   `json:"article"`
		Paragraphs []string     `json:"paragraphs"`
		Related    []model.News `json:"related"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.State)
	assert.Equal(t, "Story 2", resp.Article.Title)
	assert.Equal(t, []string{"First paragraph", "Second paragraph"}, resp.Paragraphs)
	require.Len(t, resp.Related, 2)
	for _, r := range resp.Related {
		assert.NotEqual(t, "story-2", r.Slug)
	}
}

func TestDetail_NotFound(t *testing.T) {
	rec := get(t, storeServer(t, 1), "/news/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "News article not found", errorOf(t, rec))
}

func TestSidebar(t *testing.T) {
	s := storeServer(t, 5)

	rec := get(t, s, "/news/sidebar")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Loaded     bool            `json:"loaded"`
		Archives   []model.Archive `json:"archives"`
		Categories []string        `json:"categories"`
		Recent     []model.News    `json:"recent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Loaded)
	assert.Equal(t, []string{"Film", "Studio"}, resp.Categories)
	assert.Len(t, resp.Archives, 1)
	require.Len(t, resp.Recent, 3)
	assert.Equal(t, "story-0", resp.Recent[0].Slug)
}

func TestSidebar_FailureBeforeFirstLoad(t *testing.T) {
	s := newTestServer(t, &failingSource{err: errors.New("down")})

	rec := get(t, s, "/news/sidebar")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Failed to load sidebar", errorOf(t, rec))
}

func TestSuggest(t *testing.T) {
	s := storeServer(t, 5)

	rec := get(t, s, "/news/suggest?q=stor")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Suggestions []string `json:"suggestions"`
		Visible     bool     `json:"visible"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Visible)
	assert.Equal(t, []string{"Story 0", "Story 1", "Story 2"}, resp.Suggestions)

	rec = get(t, s, "/news/suggest?q=film")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Film"}, resp.Suggestions)

	rec = get(t, s, "/news/suggest?q=%E9")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"suggestions":[],"visible":true}`, rec.Body.String())
}

// countingSource counts calls to the endpoints the sidebar fetches.
type countingSource struct {
	news.Source
	calls atomic.Int32
}

func (c *countingSource) List(ctx context.Context, opts news.ListOptions) ([]model.News, error) {
	c.calls.Add(1)
	return c.Source.List(ctx, opts)
}

func (c *countingSource) Archives(ctx context.Context) ([]model.Archive, error) {
	c.calls.Add(1)
	return c.Source.Archives(ctx)
}

func (c *countingSource) Categories(ctx context.Context) ([]string, error) {
	c.calls.Add(1)
	return c.Source.Categories(ctx)
}

func TestSuggest_UsesHeldContent(t *testing.T) {
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	_, err = st.SaveNews(context.Background(), seed(3)...)
	require.NoError(t, err)

	src := &countingSource{Source: st}
	s := newTestServer(t, src)

	for _, term := range []string{"s", "st", "sto", "story"} {
		rec := get(t, s, "/news/suggest?q="+term)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, int32(3), src.calls.Load(), "one sidebar load serves every keystroke")

	get(t, s, "/news/sidebar?refresh=true")
	assert.Equal(t, int32(6), src.calls.Load())
}

func TestSuggest_ClosedSidebar(t *testing.T) {
	src := &failingSource{err: errors.New("down")}
	s := newTestServer(t, src)
	s.sidebar.Close()

	rec := get(t, s, "/news/suggest?q=a")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"suggestions":[],"visible":true}`, rec.Body.String())
	assert.Zero(t, src.calls.Load())
}

func TestRSS(t *testing.T) {
	s := storeServer(t, 2)

	rec := get(t, s, "/news/rss.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/rss+xml"))

	parsed, err := gofeed.NewParser().ParseString(rec.Body.String())
	require.NoError(t, err)
	assert.Equal(t, "Studio News", parsed.Title)
	require.Len(t, parsed.Items, 2)
	assert.Equal(t, "https://studio.example.com/news/story-0", parsed.Items[0].Link)
}

func TestUnknownRoute(t *testing.T) {
	rec := get(t, storeServer(t, 0), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", errorOf(t, rec))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"precondition", news.Precondition("bad"), http.StatusBadRequest, "bad"},
		{"not found", news.NotFound("gone"), http.StatusNotFound, "gone"},
		{"malformed", news.Malformed(errors.New("eof")), http.StatusBadGateway, news.MsgInvalidFormat},
		{"wrapped", fmt.Errorf("load: %w", news.NotFound("gone")), http.StatusNotFound, "gone"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := classify(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := New(st, Config{Listen: "127.0.0.1:0", ShutdownTimeout: time.Second}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Echo.ListenerAddr() != nil }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Echo.ListenerAddr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
