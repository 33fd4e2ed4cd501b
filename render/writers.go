package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/mattn/go-runewidth"

	"github.com/robertmeta/newsdesk/model"
)

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

type column struct {
	title string
	width int
	value func(Card) string
}

var tableColumns = []column{
	{"DATE", 18, func(c Card) string { return c.Date }},
	{"TITLE", 40, func(c Card) string { return c.Title }},
	{"AUTHOR", 16, func(c Card) string { return c.Author }},
	{"CATEGORIES", 24, func(c Card) string { return strings.Join(c.Categories, ", ") }},
	{"SLUG", 0, func(c Card) string { return c.Slug }},
}

// Table writes cards as fixed-width text columns. Widths are measured in
// terminal cells, so wide runes line up.
func Table(w io.Writer, cards []Card) error {
	var sb strings.Builder
	writeRow(&sb, func(col column) string { return col.title })
	for _, card := range cards {
		writeRow(&sb, func(col column) string { return col.value(card) })
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeRow(sb *strings.Builder, cell func(column) string) {
	for i, col := range tableColumns {
		text := strings.Join(strings.Fields(cell(col)), " ")
		if col.width == 0 {
			sb.WriteString(text)
			continue
		}
		text = runewidth.Truncate(text, col.width, "…")
		sb.WriteString(runewidth.FillRight(text, col.width))
		if i < len(tableColumns)-1 {
			sb.WriteString("  ")
		}
	}
	sb.WriteString("\n")
}

// FeedMeta describes the channel of an RSS feed.
type FeedMeta struct {
	Title       string
	Link        string
	Description string
	Author      string
	// Updated defaults to the current time.
	Updated time.Time
}

// RSS writes items as an RSS 2.0 document. Item links are built from
// meta.Link and the article slug.
func RSS(w io.Writer, meta FeedMeta, items []model.News) error {
	updated := meta.Updated
	if updated.IsZero() {
		updated = time.Now()
	}

	base := strings.TrimRight(meta.Link, "/")
	feed := &feeds.Feed{
		Title:       meta.Title,
		Link:        &feeds.Link{Href: meta.Link},
		Description: meta.Description,
		Author:      &feeds.Author{Name: meta.Author},
		Created:     updated,
	}

	feed.Items = make([]*feeds.Item, 0, len(items))
	for _, n := range items {
		item := &feeds.Item{
			Title:       n.Title,
			Link:        &feeds.Link{Href: base + SlugPath(n.Slug)},
			Id:          n.ID,
			Description: n.Excerpt,
		}
		if n.Author != "" {
			item.Author = &feeds.Author{Name: n.Author}
		}
		if t, ok := n.PublishedTime(); ok {
			item.Created = t
		} else if t, ok := model.ParseTime(n.CreatedAt); ok {
			item.Created = t
		}
		feed.Items = append(feed.Items, item)
	}

	if err := feed.WriteRss(w); err != nil {
		return fmt.Errorf("failed to generate RSS: %w", err)
	}
	return nil
}
