package view

import (
	"context"

	"github.com/robertmeta/newsdesk/model"
	"github.com/robertmeta/newsdesk/news"
)

const (
	msgArchivesRetry = "Failed to load archives. Please try again later."
	msgPeriodFailed  = "Failed to load news articles for this period."
	msgPeriodEmpty   = "No news articles found for this period."
)

// ArchiveEntry is one bucket of the archive index.
type ArchiveEntry struct {
	model.Archive
	Active bool `json:"active"`
}

// ArchiveSnapshot is a Snapshot plus the archive index.
type ArchiveSnapshot struct {
	Snapshot
	Archives []ArchiveEntry `json:"archives"`
}

// ArchiveView lists the articles of one year+month bucket next to the full
// bucket index. The index is fetched once and reused across buckets.
type ArchiveView struct {
	list
	src      news.Source
	archives []model.Archive
	year     int
	month    int
}

// NewArchiveView creates an ArchiveView over src.
func NewArchiveView(src news.Source, opts ...Option) *ArchiveView {
	return &ArchiveView{list: newList(buildOptions(opts)), src: src}
}

// Load fetches the bucket index if it is not held yet, then the articles
// of year/month.
func (v *ArchiveView) Load(ctx context.Context, year, month int) error {
	v.mu.Lock()
	v.year, v.month = year, month
	haveIndex := v.archives != nil
	gen, err := v.beginLocked()
	v.mu.Unlock()
	if err != nil {
		return err
	}

	var (
		archives []model.Archive
		records  []model.News
		msg      string
	)
	if !haveIndex {
		archives, err = v.src.Archives(ctx)
		msg = msgArchivesRetry
	}
	if err == nil {
		records, err = v.src.ArchiveNews(ctx, year, month)
		msg = msgPeriodFailed
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if stale := v.settleLocked(gen); stale != nil {
		v.logger.Debug("Discarding stale archive response", "generation", gen, "reason", stale)
		return stale
	}
	if err != nil {
		v.items.replace(nil)
		v.logger.Error("Failed to load archive", "year", year, "month", month, "error", err)
		return v.failLocked(msg, err)
	}

	if !haveIndex {
		if archives == nil {
			archives = []model.Archive{}
		}
		model.SortArchives(archives)
		v.archives = archives
	}
	v.items.replace(records)
	v.readyLocked()
	return nil
}

// Heading returns the title of the selected bucket.
func (v *ArchiveView) Heading() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.headingLocked()
}

func (v *ArchiveView) headingLocked() string {
	return "Archive: " + model.ArchiveLabel(v.year, v.month)
}

// Snapshot returns the current state.
func (v *ArchiveView) Snapshot() ArchiveSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries := make([]ArchiveEntry, 0, len(v.archives))
	for _, a := range v.archives {
		entries = append(entries, ArchiveEntry{
			Archive: a,
			Active:  a.Year == v.year && a.Month == v.month,
		})
	}
	return ArchiveSnapshot{
		Snapshot: v.items.snapshotLocked(&v.guard, v.headingLocked(), msgPeriodEmpty),
		Archives: entries,
	}
}
