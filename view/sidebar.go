package view

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/robertmeta/newsdesk/model"
	"github.com/robertmeta/newsdesk/news"
	"github.com/robertmeta/newsdesk/suggest"
)

const (
	// SidebarFetchLimit is how many recent articles the sidebar fetches.
	SidebarFetchLimit = 10
	// RecentShown is how many of them are listed as recent posts.
	RecentShown = 3
)

// SidebarSnapshot is a consistent copy of the sidebar content.
type SidebarSnapshot struct {
	Loaded     bool            `json:"loaded"`
	Archives   []model.Archive `json:"archives"`
	Categories []string        `json:"categories"`
	Recent     []model.News    `json:"recent"`
}

// Sidebar holds archives, categories and recent articles. All three are
// fetched together and replaced together; if any fetch fails the previous
// content stays.
type Sidebar struct {
	guard
	src        news.Source
	logger     *slog.Logger
	loaded     bool
	archives   []model.Archive
	categories []string
	latest     []model.News
	engine     *suggest.Engine
}

// NewSidebar creates a Sidebar over src.
func NewSidebar(src news.Source, opts ...Option) *Sidebar {
	o := buildOptions(opts)
	return &Sidebar{
		src:        src,
		logger:     o.logger,
		archives:   []model.Archive{},
		categories: []string{},
		latest:     []model.News{},
		engine:     suggest.NewEngine(),
	}
}

// Load fetches the three sidebar collections concurrently.
func (s *Sidebar) Load(ctx context.Context) error {
	s.mu.Lock()
	gen, err := s.beginLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	var (
		archives   []model.Archive
		categories []string
		latest     []model.News
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		archives, err = s.src.Archives(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.src.Categories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		latest, err = s.src.List(gctx, news.ListOptions{Limit: SidebarFetchLimit})
		return err
	})
	err = g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if stale := s.settleLocked(gen); stale != nil {
		return stale
	}
	if err != nil {
		s.logger.Error("Failed to load sidebar", "error", err)
		if s.loaded {
			s.readyLocked()
			return err
		}
		s.failLocked("Failed to load sidebar", err)
		return err
	}

	model.SortArchives(archives)
	s.archives = nonNil(archives)
	s.categories = nonNil(categories)
	s.latest = nonNil(latest)
	s.loaded = true

	titles := make([]string, 0, len(s.latest))
	for _, n := range s.latest {
		titles = append(titles, n.Title)
	}
	s.engine.SetSnapshot(titles, s.categories)
	s.readyLocked()
	return nil
}

// EnsureLoaded loads the sidebar unless it already holds content. Losing
// a race to a concurrent Load is not an error.
func (s *Sidebar) EnsureLoaded(ctx context.Context) error {
	if s.Loaded() {
		return nil
	}
	err := s.Load(ctx)
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	return err
}

// Loaded reports whether any load has succeeded.
func (s *Sidebar) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Recent returns the first RecentShown of the fetched articles.
func (s *Sidebar) Recent() []model.News {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentLocked()
}

func (s *Sidebar) recentLocked() []model.News {
	return append([]model.News{}, s.latest[:min(RecentShown, len(s.latest))]...)
}

// Suggest returns search suggestions from the held titles and categories.
func (s *Sidebar) Suggest(term string) suggest.Result {
	return s.engine.Suggest(term)
}

// Snapshot returns the current content.
func (s *Sidebar) Snapshot() SidebarSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SidebarSnapshot{
		Loaded:     s.loaded,
		Archives:   append([]model.Archive{}, s.archives...),
		Categories: append([]string{}, s.categories...),
		Recent:     s.recentLocked(),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
