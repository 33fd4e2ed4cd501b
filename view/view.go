// Package view coordinates fetching, pagination and load state for each
// news screen. Coordinators are safe for concurrent use; every Load is
// stamped with a generation and only the latest one may commit.
package view

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/robertmeta/newsdesk/model"
	"github.com/robertmeta/newsdesk/paginate"
)

// State is the load state of a coordinator.
type State int

const (
	StateLoading State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "loading":
		*s = StateLoading
	case "ready":
		*s = StateReady
	case "failed":
		*s = StateFailed
	default:
		return fmt.Errorf("view: unknown state %q", text)
	}
	return nil
}

var (
	// ErrSuperseded is returned by a Load whose result was discarded because
	// a newer Load started after it.
	ErrSuperseded = errors.New("view: superseded by a newer request")
	// ErrClosed is returned by a Load on, or finishing after, a closed view.
	ErrClosed = errors.New("view: closed")
)

// Failure carries the message shown to the reader alongside the cause.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Err }

// Option configures a coordinator.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	pageSize int
	rand     *rand.Rand
}

// WithLogger sets the logger for load diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPageSize sets the number of records per page.
func WithPageSize(size int) Option {
	return func(o *options) {
		o.pageSize = size
	}
}

// WithRand sets the random source used to pick related articles.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		o.rand = r
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   slog.Default(),
		pageSize: paginate.DefaultPageSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// guard is the Loading → Ready | Failed state machine plus the generation
// counter. Callers hold mu around every *Locked method.
type guard struct {
	mu      sync.Mutex
	gen     uint64
	closed  bool
	state   State
	failure *Failure
}

func (g *guard) beginLocked() (uint64, error) {
	if g.closed {
		return 0, ErrClosed
	}
	g.gen++
	g.state = StateLoading
	g.failure = nil
	return g.gen, nil
}

// settleLocked reports why a response for gen must be dropped, or nil.
func (g *guard) settleLocked(gen uint64) error {
	if g.closed {
		return ErrClosed
	}
	if gen != g.gen {
		return ErrSuperseded
	}
	return nil
}

func (g *guard) readyLocked() {
	g.state = StateReady
	g.failure = nil
}

func (g *guard) failLocked(msg string, err error) error {
	g.state = StateFailed
	g.failure = &Failure{Message: msg, Err: err}
	return g.failure
}

func (g *guard) messageLocked() string {
	if g.failure == nil {
		return ""
	}
	return g.failure.Message
}

// Close tears the view down. Responses still in flight are discarded.
func (g *guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.gen++
}

// State returns the current load state.
func (g *guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// collection holds fetched records, the pager over them and the visible id
// set of the current page.
type collection struct {
	records []model.News
	pager   *paginate.Pager
	visible []string
}

func newCollection(size int) collection {
	return collection{records: []model.News{}, pager: paginate.NewPager(size), visible: []string{}}
}

func (c *collection) replace(records []model.News) {
	if records == nil {
		records = []model.News{}
	}
	c.records = records
	c.pager.Reset(len(records))
	c.refreshVisible()
}

func (c *collection) gotoPage(page int) bool {
	if !c.pager.Goto(page) {
		return false
	}
	c.refreshVisible()
	return true
}

func (c *collection) page() paginate.Page[model.News] {
	return paginate.Apply(c.pager, c.records)
}

func (c *collection) refreshVisible() {
	items := c.page().Items
	c.visible = make([]string, 0, len(items))
	for _, n := range items {
		c.visible = append(c.visible, n.ID)
	}
}

// Snapshot is a consistent copy of a list coordinator's state.
type Snapshot struct {
	State       State                      `json:"state"`
	Heading     string                     `json:"heading,omitempty"`
	Error       string                     `json:"error,omitempty"`
	Empty       string                     `json:"empty,omitempty"`
	Page        paginate.Page[model.News] `json:"page"`
	VisibleIDs  []string                   `json:"visibleIds"`
	ShowPager   bool                       `json:"showPager"`
	HasPrevious bool                       `json:"hasPrevious"`
	HasNext     bool                       `json:"hasNext"`
}

func (c *collection) snapshotLocked(g *guard, heading, empty string) Snapshot {
	s := Snapshot{
		State:       g.state,
		Heading:     heading,
		Error:       g.messageLocked(),
		Page:        c.page(),
		VisibleIDs:  append([]string(nil), c.visible...),
		ShowPager:   c.pager.ShowControl(),
		HasPrevious: c.pager.HasPrev(),
		HasNext:     c.pager.HasNext(),
	}
	if g.state == StateReady && len(c.records) == 0 {
		s.Empty = empty
	}
	return s
}
