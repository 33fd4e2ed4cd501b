// Package opml reads and writes OPML subscription lists for newsdesk's
// feed import.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/robertmeta/newsdesk/feed"
)

// OPML represents the root OPML structure.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains metadata about the OPML document.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outline elements.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is a subscription or a folder of them.
type Outline struct {
	Text     string    `xml:"text,attr,omitempty"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLUrl   string    `xml:"xmlUrl,attr,omitempty"`
	Category string    `xml:"category,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Subscription is one feed of the list. Records imported from it that
// carry no category are filed under Category.
type Subscription struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
}

// Target converts s into a fetch target.
func (s Subscription) Target() feed.Target {
	return feed.Target{URL: s.URL, Category: s.Category}
}

// Targets converts subscriptions into fetch targets, keeping their order.
func Targets(subs []Subscription) []feed.Target {
	targets := make([]feed.Target, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s.Target())
	}
	return targets
}

// Parse reads an OPML document and extracts its subscriptions.
func Parse(r io.Reader) ([]Subscription, error) {
	var doc OPML
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	return extractSubscriptions(doc.Body.Outlines, ""), nil
}

// extractSubscriptions walks outlines depth first. A folder's text becomes
// the category of children that name none.
func extractSubscriptions(outlines []Outline, parentCategory string) []Subscription {
	subs := []Subscription{}

	for _, outline := range outlines {
		if url := strings.TrimSpace(outline.XMLUrl); url != "" {
			sub := Subscription{
				URL:      url,
				Title:    firstNonEmpty(outline.Title, outline.Text),
				Category: firstNonEmpty(outline.Category, parentCategory),
			}
			subs = append(subs, sub)
		}

		if len(outline.Outlines) > 0 {
			childCategory := firstNonEmpty(outline.Text, outline.Title, parentCategory)
			subs = append(subs, extractSubscriptions(outline.Outlines, childCategory)...)
		}
	}

	return subs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Generate writes subscriptions as OPML 2.0, one folder per category in
// name order, followed by uncategorized feeds.
func Generate(w io.Writer, subs []Subscription, created time.Time) error {
	categories := make(map[string][]Subscription)
	var names []string
	var uncategorized []Subscription

	for _, sub := range subs {
		if sub.Category == "" {
			uncategorized = append(uncategorized, sub)
			continue
		}
		if _, ok := categories[sub.Category]; !ok {
			names = append(names, sub.Category)
		}
		categories[sub.Category] = append(categories[sub.Category], sub)
	}
	slices.Sort(names)

	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       "newsdesk Subscriptions",
			DateCreated: created.Format(time.RFC1123),
		},
		Body: Body{Outlines: []Outline{}},
	}

	for _, name := range names {
		folder := Outline{Text: name, Title: name, Outlines: []Outline{}}
		for _, sub := range categories[name] {
			folder.Outlines = append(folder.Outlines, subscriptionOutline(sub))
		}
		doc.Body.Outlines = append(doc.Body.Outlines, folder)
	}
	for _, sub := range uncategorized {
		doc.Body.Outlines = append(doc.Body.Outlines, subscriptionOutline(sub))
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}

	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}
	return nil
}

func subscriptionOutline(sub Subscription) Outline {
	title := firstNonEmpty(sub.Title, sub.URL)
	return Outline{
		Type:     "rss",
		Text:     title,
		Title:    title,
		XMLUrl:   sub.URL,
		Category: sub.Category,
	}
}
