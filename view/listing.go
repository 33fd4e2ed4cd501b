package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robertmeta/newsdesk/model"
	"github.com/robertmeta/newsdesk/news"
)

const (
	msgListingNoData = "Failed to load news articles. The API may have returned no data."
	msgListingRetry  = "Failed to load news articles. Please try again later."
	msgListingEmpty  = "No news articles found. Please check the API or database."
	msgSearchRetry   = "Failed to fetch search results. Please try again later."
	msgCategoryRetry = "Failed to load news for this category. Please try again later."
)

// list is the shared fetch-then-paginate machinery of the list views.
type list struct {
	guard
	items  collection
	logger *slog.Logger
}

func newList(o options) list {
	return list{items: newCollection(o.pageSize), logger: o.logger}
}

type failMessage func(err error, held bool) string

// load runs fetch under a new generation. When keep is set, records held
// from an earlier load survive a failure. A non-nil key runs under the
// same lock that starts the generation, so the view's heading always
// belongs to the newest load.
func (l *list) load(ctx context.Context, key func(), fetch func(context.Context) ([]model.News, error), message failMessage, keep bool) error {
	l.mu.Lock()
	gen, err := l.beginLocked()
	if err == nil && key != nil {
		key()
	}
	l.mu.Unlock()
	if err != nil {
		return err
	}

	records, err := fetch(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if stale := l.settleLocked(gen); stale != nil {
		l.logger.Debug("Discarding stale response", "generation", gen, "reason", stale)
		return stale
	}
	if err != nil {
		held := len(l.items.records) > 0
		if !keep {
			l.items.replace(nil)
		}
		l.logger.Error("Failed to load news", "error", err)
		return l.failLocked(message(err, held), err)
	}

	l.items.replace(records)
	l.readyLocked()
	return nil
}

// failWithoutFetch moves straight to Failed under a new generation.
func (l *list) failWithoutFetch(key func(), msg string, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, cerr := l.beginLocked(); cerr != nil {
		return cerr
	}
	key()
	l.items.replace(nil)
	return l.failLocked(msg, err)
}

// SetPage moves to page without refetching. It reports whether the page
// changed.
func (l *list) SetPage(page int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.items.gotoPage(page)
}

// VisibleIDs returns the ids of the records on the current page.
func (l *list) VisibleIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.items.visible...)
}

// Records returns every record held, across all pages.
func (l *list) Records() []model.News {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.News(nil), l.items.records...)
}

// Listing is the main news listing.
type Listing struct {
	list
	src news.Source
}

// NewListing creates a Listing over src.
func NewListing(src news.Source, opts ...Option) *Listing {
	return &Listing{list: newList(buildOptions(opts)), src: src}
}

// Load fetches the full listing. Records from a previous successful load
// are kept when this one fails.
func (l *Listing) Load(ctx context.Context) error {
	fetch := func(ctx context.Context) ([]model.News, error) {
		return l.src.List(ctx, news.ListOptions{})
	}
	return l.load(ctx, nil, fetch, listingMessage, true)
}

func listingMessage(_ error, held bool) string {
	if held {
		return msgListingRetry
	}
	return msgListingNoData
}

// Snapshot returns the current state.
func (l *Listing) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.items.snapshotLocked(&l.guard, "", msgListingEmpty)
}

// CategoryView lists the articles of one category.
type CategoryView struct {
	list
	src      news.Source
	category string
}

// NewCategoryView creates a CategoryView over src.
func NewCategoryView(src news.Source, opts ...Option) *CategoryView {
	return &CategoryView{list: newList(buildOptions(opts)), src: src}
}

// Load fetches the articles of category. A blank category fails without
// a request.
func (v *CategoryView) Load(ctx context.Context, category string) error {
	category = strings.TrimSpace(category)
	key := func() { v.category = category }

	if category == "" {
		err := news.Precondition("Category is empty or invalid")
		return v.failWithoutFetch(key, err.Message, err)
	}

	fetch := func(ctx context.Context) ([]model.News, error) {
		return v.src.List(ctx, news.ListOptions{Category: category})
	}
	return v.load(ctx, key, fetch, func(err error, _ bool) string {
		if news.IsKind(err, news.KindStatus) {
			return "Failed to load news for this category: " + errorMessage(err)
		}
		return msgCategoryRetry
	}, false)
}

// Snapshot returns the current state.
func (v *CategoryView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.items.snapshotLocked(&v.guard,
		"Category: "+v.category,
		fmt.Sprintf("No news found for category %q.", v.category))
}

// SearchView lists server-side search results.
type SearchView struct {
	list
	src   news.Source
	query string
}

// NewSearchView creates a SearchView over src.
func NewSearchView(src news.Source, opts ...Option) *SearchView {
	return &SearchView{list: newList(buildOptions(opts)), src: src}
}

// Load runs the search for query. A blank query fails without a request.
func (v *SearchView) Load(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	key := func() { v.query = query }

	if query == "" {
		err := news.Precondition("Search query is empty or invalid")
		return v.failWithoutFetch(key, err.Message, err)
	}

	fetch := func(ctx context.Context) ([]model.News, error) {
		return v.src.Search(ctx, query)
	}
	return v.load(ctx, key, fetch, func(err error, _ bool) string {
		if news.IsKind(err, news.KindStatus) {
			return "Failed to fetch search results: " + errorMessage(err)
		}
		return msgSearchRetry
	}, false)
}

// Snapshot returns the current state.
func (v *SearchView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	heading := "No Query"
	if v.query != "" {
		heading = v.query
	}
	return v.items.snapshotLocked(&v.guard,
		fmt.Sprintf("Search Results for %q", heading),
		fmt.Sprintf("No results found for %q.", v.query))
}

// errorMessage returns the API-facing message of err without its cause chain.
func errorMessage(err error) string {
	var e *news.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
