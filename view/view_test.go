package view

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/robertmeta/newsdesk/model"
	"github.com/robertmeta/newsdesk/news"
)

// fakeSource answers each Source method with the configured function and
// counts calls.
type fakeSource struct {
	mu          sync.Mutex
	calls       map[string]int
	list        func(context.Context, news.ListOptions) ([]model.News, error)
	get         func(context.Context, string) (model.News, error)
	search      func(context.Context, string) ([]model.News, error)
	archives    func(context.Context) ([]model.Archive, error)
	archiveNews func(context.Context, int, int) ([]model.News, error)
	categories  func(context.Context) ([]string, error)
}

var _ news.Source = (*fakeSource)(nil)

func (f *fakeSource) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakeSource) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSource) List(ctx context.Context, opts news.ListOptions) ([]model.News, error) {
	f.record("List")
	if f.list == nil {
		return nil, nil
	}
	return f.list(ctx, opts)
}

func (f *fakeSource) Get(ctx context.Context, slug string) (model.News, error) {
	f.record("Get")
	if f.get == nil {
		return model.News{}, news.NotFound("missing")
	}
	return f.get(ctx, slug)
}

func (f *fakeSource) Search(ctx context.Context, query string) ([]model.News, error) {
	f.record("Search")
	if f.search == nil {
		return nil, nil
	}
	return f.search(ctx, query)
}

func (f *fakeSource) Archives(ctx context.Context) ([]model.Archive, error) {
	f.record("Archives")
	if f.archives == nil {
		return nil, nil
	}
	return f.archives(ctx)
}

func (f *fakeSource) ArchiveNews(ctx context.Context, year, month int) ([]model.News, error) {
	f.record("ArchiveNews")
	if f.archiveNews == nil {
		return nil, nil
	}
	return f.archiveNews(ctx, year, month)
}

func (f *fakeSource) Categories(ctx context.Context) ([]string, error) {
	f.record("Categories")
	if f.categories == nil {
		return nil, nil
	}
	return f.categories(ctx)
}

func makeNews(n int) []model.News {
	items := make([]model.News, n)
	for i := range items {
		items[i] = model.News{
			ID:         fmt.Sprintf("id-%d", i),
			Slug:       fmt.Sprintf("slug-%d", i),
			Title:      fmt.Sprintf("Title %d", i),
			Categories: []string{},
		}
	}
	return items
}

func ids(items []model.News) []string {
	out := make([]string, 0, len(items))
	for _, n := range items {
		out = append(out, n.ID)
	}
	return out
}

func quietLogger() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var errNetwork = errors.New("dial tcp: connection refused")

func statusError(code int, text string) error {
	return &news.Error{Kind: news.KindStatus, Status: code, Message: fmt.Sprintf("%d %s", code, text)}
}
