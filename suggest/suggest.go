// Package suggest produces search auto-complete candidates from the titles
// and categories the sidebar already holds.
package suggest

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// Result limits.
const (
	MaxTitles      = 3
	MaxCategories  = 2
	MaxSuggestions = 5
)

// Result is the outcome of one suggestion pass.
type Result struct {
	Suggestions []string `json:"suggestions"`
	// Visible is cleared when the term is blank.
	Visible bool `json:"visible"`
}

// Shown reports whether a dropdown would have anything to display.
func (r Result) Shown() bool {
	return r.Visible && len(r.Suggestions) > 0
}

// Suggest matches term case-insensitively and literally against titles and
// categories, in source order. Invalid UTF-8 in term is treated as U+FFFD.
func Suggest(term string, titles, categories []string) Result {
	term = strings.TrimSpace(term)
	if term == "" {
		return Result{Suggestions: []string{}}
	}
	if !utf8.ValidString(term) {
		term = strings.ToValidUTF8(term, string(utf8.RuneError))
	}

	matcher, err := regexp.Compile("(?i)" + regexp.QuoteMeta(term))
	if err != nil {
		return Result{Suggestions: []string{}, Visible: true}
	}

	combined := make([]string, 0, MaxTitles+MaxCategories)
	combined = appendMatches(combined, matcher, titles, MaxTitles)
	combined = appendMatches(combined, matcher, categories, MaxCategories)

	return Result{Suggestions: dedupe(combined, MaxSuggestions), Visible: true}
}

func appendMatches(dst []string, matcher *regexp.Regexp, candidates []string, limit int) []string {
	taken := 0
	for _, c := range candidates {
		if taken == limit {
			break
		}
		if matcher.MatchString(c) {
			dst = append(dst, c)
			taken++
		}
	}
	return dst
}

func dedupe(values []string, limit int) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Engine holds a snapshot of titles and categories and answers Suggest
// calls against it. It is safe for concurrent use.
type Engine struct {
	mu         sync.RWMutex
	titles     []string
	categories []string
}

// NewEngine creates an Engine with an empty snapshot.
func NewEngine() *Engine {
	return &Engine{}
}

// SetSnapshot replaces the titles and categories matched against.
func (e *Engine) SetSnapshot(titles, categories []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.titles = append([]string(nil), titles...)
	e.categories = append([]string(nil), categories...)
}

// Suggest runs Suggest over the current snapshot.
func (e *Engine) Suggest(term string) Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Suggest(term, e.titles, e.categories)
}
