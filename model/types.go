// Package model defines the core data structures for newsdesk.
package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Defaults applied to records whose source omitted a field.
const (
	DefaultTitle     = "Untitled"
	DefaultExcerpt   = "No excerpt available"
	DefaultAuthor    = "Unknown"
	PlaceholderImage = "/placeholder-image.jpg"
)

// News represents a single normalized news article.
type News struct {
	ID          string   `json:"_id"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Excerpt     string   `json:"excerpt"`
	Content     string   `json:"content"`
	Image       string   `json:"image"`
	Author      string   `json:"author"`
	PublishedAt string   `json:"publishedAt"`
	Date        string   `json:"date"`
	Categories  []string `json:"categories"`
	Published   bool     `json:"published"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// Paragraphs splits the article content on newlines, dropping blank lines.
func (n *News) Paragraphs() []string {
	var paragraphs []string
	for _, line := range strings.Split(n.Content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		paragraphs = append(paragraphs, line)
	}
	return paragraphs
}

// PublishedTime parses PublishedAt. The second result is false when the
// timestamp is missing or unparseable.
func (n *News) PublishedTime() (time.Time, bool) {
	return ParseTime(n.PublishedAt)
}

// HasCategory checks if the article is filed under the named category.
func (n *News) HasCategory(name string) bool {
	return slices.Contains(n.Categories, name)
}

// Archive is a year+month bucket of published articles.
type Archive struct {
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	DisplayDate string `json:"displayDate"`
	Count       int    `json:"count"`
}

// Validate checks the bucket has a usable year and month.
func (a *Archive) Validate() error {
	if a.Year <= 0 {
		return errors.New("archive year is required")
	}
	if a.Month < 1 || a.Month > 12 {
		return fmt.Errorf("archive month %d out of range", a.Month)
	}
	if a.Count < 0 {
		return fmt.Errorf("archive count %d is negative", a.Count)
	}
	return nil
}

// Label renders the bucket as "May 2025".
func (a *Archive) Label() string {
	return ArchiveLabel(a.Year, a.Month)
}

// ArchiveLabel renders a year and month as "May 2025".
func ArchiveLabel(year, month int) string {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("January 2006")
}

// SortArchives orders buckets newest first.
func SortArchives(archives []Archive) {
	slices.SortStableFunc(archives, func(a, b Archive) int {
		if a.Year != b.Year {
			return b.Year - a.Year
		}
		return b.Month - a.Month
	})
}
