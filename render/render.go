// Package render turns news records into cards, route paths and output
// formats for newsdesk.
package render

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robertmeta/newsdesk/model"
)

// Card is one article as handed to a renderer. Index is the position on
// the page and drives the staggered entrance; Visible is set once the
// card's id is in the visible set.
type Card struct {
	model.News
	Index   int  `json:"index"`
	Visible bool `json:"visible"`
}

// Cards builds the cards for a page of records.
func Cards(items []model.News, visibleIDs []string) []Card {
	visible := make(map[string]struct{}, len(visibleIDs))
	for _, id := range visibleIDs {
		visible[id] = struct{}{}
	}

	cards := make([]Card, 0, len(items))
	for i, n := range items {
		_, ok := visible[n.ID]
		cards = append(cards, Card{News: n, Index: i, Visible: ok})
	}
	return cards
}

// SlugPath is the route of an article.
func SlugPath(slug string) string {
	return "/news/" + url.PathEscape(slug)
}

// CategoryPath is the route of a category listing.
func CategoryPath(category string) string {
	return "/news/category/" + url.PathEscape(category)
}

// SearchPath is the route of a search. It reports false for a blank term,
// which does not navigate.
func SearchPath(term string) (string, bool) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", false
	}
	return "/news/search/" + url.PathEscape(term), true
}

// ArchivePath is the route of an archive bucket.
func ArchivePath(year, month int) string {
	return fmt.Sprintf("/news/archives/%d/%d", year, month)
}
