package view

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/robertmeta/newsdesk/model"
	"github.com/robertmeta/newsdesk/news"
)

const (
	msgMissingSlug   = "News article not found - missing slug parameter"
	msgDetailRetry   = "Failed to load news article. Please try again later."
	msgDetailMissing = "News article not found"

	// RelatedPool is how many recent articles related picks are drawn from.
	RelatedPool = 4
	// RelatedCount is how many related articles are shown.
	RelatedCount = 2
)

// DetailSnapshot is a consistent copy of a Detail's state.
type DetailSnapshot struct {
	State      State        `json:"state"`
	Error      string       `json:"error,omitempty"`
	Article    *model.News  `json:"article,omitempty"`
	Paragraphs []string     `json:"paragraphs,omitempty"`
	Related    []model.News `json:"related"`
}

// Detail shows one article and a couple of related ones.
//
// Related articles are a random pick from the most recent listing, not a
// relevance ranking.
type Detail struct {
	guard
	src     news.Source
	logger  *slog.Logger
	rand    *rand.Rand
	slug    string
	article *model.News
	related []model.News
}

// NewDetail creates a Detail over src.
func NewDetail(src news.Source, opts ...Option) *Detail {
	o := buildOptions(opts)
	return &Detail{src: src, logger: o.logger, rand: o.rand, related: []model.News{}}
}

// Load fetches the article for slug and then its related articles. A
// failure fetching related articles is logged and leaves them empty.
func (d *Detail) Load(ctx context.Context, slug string) error {
	slug = strings.TrimSpace(slug)

	d.mu.Lock()
	gen, err := d.beginLocked()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.slug = slug
	d.article = nil
	d.related = []model.News{}
	if slug == "" {
		defer d.mu.Unlock()
		return d.failLocked(msgMissingSlug, news.Precondition(msgMissingSlug))
	}
	d.mu.Unlock()

	article, err := d.src.Get(ctx, slug)
	if err := d.commitArticle(gen, article, err); err != nil {
		return err
	}

	candidates, err := d.src.List(ctx, news.ListOptions{Limit: RelatedPool})
	if err != nil {
		d.logger.Warn("Failed to load related articles", "slug", slug, "error", err)
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if stale := d.settleLocked(gen); stale != nil {
		return stale
	}
	d.related = pickRelated(candidates, slug, RelatedCount, d.rand)
	return nil
}

func (d *Detail) commitArticle(gen uint64, article model.News, err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if stale := d.settleLocked(gen); stale != nil {
		d.logger.Debug("Discarding stale article response", "generation", gen, "reason", stale)
		return stale
	}
	if err != nil {
		d.logger.Error("Failed to load article", "slug", d.slug, "error", err)
		return d.failLocked(detailMessage(err), err)
	}
	d.article = &article
	d.readyLocked()
	return nil
}

func detailMessage(err error) string {
	switch news.KindOf(err) {
	case news.KindStatus:
		return "Failed to load news article: " + errorMessage(err)
	case news.KindNotFound:
		return msgDetailMissing
	default:
		return msgDetailRetry
	}
}

// pickRelated drops the current article and returns up to n of the rest
// in random order. A nil r uses the shared generator.
func pickRelated(candidates []model.News, slug string, n int, r *rand.Rand) []model.News {
	pool := make([]model.News, 0, len(candidates))
	for _, c := range candidates {
		if c.Slug != slug {
			pool = append(pool, c)
		}
	}

	shuffle := rand.Shuffle
	if r != nil {
		shuffle = r.Shuffle
	}
	shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	return pool[:min(n, len(pool))]
}

// Snapshot returns the current state.
func (d *Detail) Snapshot() DetailSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := DetailSnapshot{
		State:   d.state,
		Error:   d.messageLocked(),
		Related: append([]model.News{}, d.related...),
	}
	if d.article != nil {
		article := *d.article
		s.Article = &article
		s.Paragraphs = article.Paragraphs()
	}
	return s
}
