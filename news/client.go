// Package news retrieves articles from the studio content API and
// normalizes them into model.News records.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robertmeta/newsdesk/model"
)

// Source is anything that can serve the news endpoints. *Client talks to
// the remote API; the SQLite mirror implements it for offline use.
type Source interface {
	List(ctx context.Context, opts ListOptions) ([]model.News, error)
	Get(ctx context.Context, slug string) (model.News, error)
	Search(ctx context.Context, query string) ([]model.News, error)
	Archives(ctx context.Context) ([]model.Archive, error)
	ArchiveNews(ctx context.Context, year, month int) ([]model.News, error)
	Categories(ctx context.Context) ([]string, error)
}

// ListOptions filters the listing endpoint. Zero values mean no filter.
type ListOptions struct {
	Limit    int
	Category string
}

const defaultTimeout = 30 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// WithTimeout sets the request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithNormalizer replaces the record normalizer.
func WithNormalizer(n *Normalizer) Option {
	return func(c *Client) {
		c.normalizer = n
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client fetches articles from the content API.
type Client struct {
	base       url.URL
	http       *http.Client
	normalizer *Normalizer
	logger     *slog.Logger
}

var _ Source = (*Client)(nil)

// NewClient creates a Client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid API URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:       *base,
		http:       &http.Client{Timeout: defaultTimeout},
		normalizer: NewNormalizer(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// List fetches the article listing.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]model.News, error) {
	params := url.Values{}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Category != "" {
		params.Set("category", opts.Category)
	}
	return c.fetchNews(ctx, params, "api", "news")
}

// Get fetches a single article by slug.
func (c *Client) Get(ctx context.Context, slug string) (model.News, error) {
	if strings.TrimSpace(slug) == "" {
		return model.News{}, Precondition("article slug is required")
	}

	records, err := c.fetchNews(ctx, nil, "api", "news", slug)
	if err != nil {
		if StatusOf(err) == http.StatusNotFound {
			return model.News{}, &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: "News article not found", Err: err}
		}
		return model.News{}, err
	}
	if len(records) == 0 {
		return model.News{}, NotFound("News article %q not found", slug)
	}
	return records[0], nil
}

// Search runs a server-side free-text search.
func (c *Client) Search(ctx context.Context, query string) ([]model.News, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, Precondition("Search query is empty or invalid")
	}
	return c.fetchNews(ctx, url.Values{"q": {query}}, "api", "news", "search")
}

// ArchiveNews fetches the articles of one year+month bucket.
func (c *Client) ArchiveNews(ctx context.Context, year, month int) ([]model.News, error) {
	if err := validateBucket(year, month); err != nil {
		return nil, err
	}
	return c.fetchNews(ctx, nil, "api", "news", "archives", strconv.Itoa(year), strconv.Itoa(month))
}

// Archives fetches the archive buckets. Buckets failing validation are dropped.
func (c *Client) Archives(ctx context.Context) ([]model.Archive, error) {
	elems, err := c.fetchElements(ctx, nil, "api", "news", "archives")
	if err != nil {
		return nil, err
	}

	archives := make([]model.Archive, 0, len(elems))
	for _, elem := range elems {
		var a model.Archive
		if err := json.Unmarshal(elem, &a); err != nil {
			c.logger.Debug("Skipping archive bucket", "error", err)
			continue
		}
		if err := a.Validate(); err != nil {
			c.logger.Debug("Skipping archive bucket", "error", err)
			continue
		}
		if a.DisplayDate == "" {
			a.DisplayDate = a.Label()
		}
		archives = append(archives, a)
	}
	return archives, nil
}

// Categories fetches the category names. Blank names are dropped.
func (c *Client) Categories(ctx context.Context) ([]string, error) {
	elems, err := c.fetchElements(ctx, nil, "api", "news", "categories")
	if err != nil {
		return nil, err
	}

	categories := make([]string, 0, len(elems))
	for _, elem := range elems {
		var name string
		if err := json.Unmarshal(elem, &name); err != nil || strings.TrimSpace(name) == "" {
			continue
		}
		categories = append(categories, name)
	}
	return categories, nil
}

func (c *Client) fetchNews(ctx context.Context, params url.Values, path ...string) ([]model.News, error) {
	elems, err := c.fetchElements(ctx, params, path...)
	if err != nil {
		return nil, err
	}
	return c.normalizer.NormalizeBatch(elems), nil
}

func (c *Client) fetchElements(ctx context.Context, params url.Values, path ...string) ([]json.RawMessage, error) {
	body, err := c.do(ctx, params, path...)
	if err != nil {
		return nil, err
	}
	return DecodeElements(body)
}

func (c *Client) do(ctx context.Context, params url.Values, path ...string) ([]byte, error) {
	reqURL := c.base.JoinPath(path...)
	if len(params) > 0 {
		reqURL.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, newError(KindTransport, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, newError(KindTransport, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindTransport, "failed to read response", err)
	}

	c.logger.Debug("Content API request",
		"url", reqURL.String(),
		"status", resp.StatusCode,
		"latency", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:    KindStatus,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("%d %s", resp.StatusCode, statusDetail(resp, body)),
		}
	}
	return body, nil
}

// statusDetail prefers the API's own "message" over the status text.
func statusDetail(resp *http.Response, body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return "unexpected status"
}

func validateBucket(year, month int) error {
	a := model.Archive{Year: year, Month: month}
	if err := a.Validate(); err != nil {
		return &Error{Kind: KindPrecondition, Message: "invalid archive bucket", Err: err}
	}
	return nil
}

// IsCanceled reports whether err stems from context cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
