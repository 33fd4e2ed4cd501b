// Package store provides the SQLite offline mirror for newsdesk. A Store
// serves the same operations as the content API.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/robertmeta/newsdesk/model"
	"github.com/robertmeta/newsdesk/news"
)

// Store manages the SQLite database.
type Store struct {
	db *sql.DB
}

var _ news.Source = (*Store)(nil)

// New creates a new Store with the given database path.
// Use ":memory:" for an in-memory database (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}

	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates the database tables and indexes.
func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS news (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL,
		title TEXT NOT NULL,
		excerpt TEXT NOT NULL,
		content TEXT NOT NULL,
		image TEXT NOT NULL,
		author TEXT NOT NULL,
		published_at TEXT NOT NULL,
		date TEXT NOT NULL,
		published INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		sort_key INTEGER NOT NULL DEFAULT 0,
		year INTEGER NOT NULL DEFAULT 0,
		month INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS news_categories (
		news_id TEXT NOT NULL,
		name TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (news_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_news_slug ON news(slug);
	CREATE INDEX IF NOT EXISTS idx_news_sort_key ON news(sort_key DESC);
	CREATE INDEX IF NOT EXISTS idx_news_bucket ON news(year, month);
	CREATE INDEX IF NOT EXISTS idx_news_categories_name ON news_categories(name);
	`

	_, err := s.db.Exec(schema)
	return err
}

const newsColumns = "id, slug, title, excerpt, content, image, author, published_at, date, published, created_at, updated_at"

// SaveNews upserts records by id. A record's categories are replaced.
// It returns the number of records written.
func (s *Store) SaveNews(ctx context.Context, items ...model.News) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, n := range items {
		if n.ID == "" {
			return 0, fmt.Errorf("cannot save news %q without an id", n.Slug)
		}

		sortKey, year, month := bucketOf(n)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO news (`+newsColumns+`, sort_key, year, month)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				slug = excluded.slug,
				title = excluded.title,
				excerpt = excluded.excerpt,
				content = excluded.content,
				image = excluded.image,
				author = excluded.author,
				published_at = excluded.published_at,
				date = excluded.date,
				published = excluded.published,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at,
				sort_key = excluded.sort_key,
				year = excluded.year,
				month = excluded.month`,
			n.ID, n.Slug, n.Title, n.Excerpt, n.Content, n.Image, n.Author,
			n.PublishedAt, n.Date, boolToInt(n.Published), n.CreatedAt, n.UpdatedAt,
			sortKey, year, month,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to save news %s: %w", n.ID, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM news_categories WHERE news_id = ?", n.ID); err != nil {
			return 0, fmt.Errorf("failed to clear categories of %s: %w", n.ID, err)
		}
		for i, name := range n.Categories {
			_, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO news_categories (news_id, name, position) VALUES (?, ?, ?)",
				n.ID, name, i,
			)
			if err != nil {
				return 0, fmt.Errorf("failed to save category %q of %s: %w", name, n.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return len(items), nil
}

// bucketOf returns the sort key (unix ms) and archive bucket of n, taken
// from publishedAt, then createdAt. Unparsable dates give zeros.
func bucketOf(n model.News) (int64, int, int) {
	t, ok := n.PublishedTime()
	if !ok {
		t, ok = model.ParseTime(n.CreatedAt)
	}
	if !ok {
		return 0, 0, 0
	}
	t = t.UTC()
	return t.UnixMilli(), t.Year(), int(t.Month())
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, opts news.ListOptions) ([]model.News, error) {
	query := "SELECT " + newsColumns + " FROM news WHERE 1=1"
	args := []any{}

	if opts.Category != "" {
		query += " AND id IN (SELECT news_id FROM news_categories WHERE name = ?)"
		args = append(args, opts.Category)
	}

	query += " ORDER BY sort_key DESC, id"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	return s.queryNews(ctx, query, args...)
}

// Get returns the newest record with the given slug.
func (s *Store) Get(ctx context.Context, slug string) (model.News, error) {
	if strings.TrimSpace(slug) == "" {
		return model.News{}, news.Precondition("article slug is required")
	}

	items, err := s.queryNews(ctx,
		"SELECT "+newsColumns+" FROM news WHERE slug = ? ORDER BY sort_key DESC LIMIT 1", slug)
	if err != nil {
		return model.News{}, err
	}
	if len(items) == 0 {
		return model.News{}, news.NotFound("News article %q not found", slug)
	}
	return items[0], nil
}

// Search matches query literally and case-insensitively against title,
// excerpt and content.
func (s *Store) Search(ctx context.Context, query string) ([]model.News, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, news.Precondition("Search query is empty or invalid")
	}

	pattern := likePattern(query)
	return s.queryNews(ctx, `
		SELECT `+newsColumns+` FROM news
		WHERE title LIKE ? ESCAPE '\' OR excerpt LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'
		ORDER BY sort_key DESC, id`,
		pattern, pattern, pattern,
	)
}

// Archives returns the year+month buckets of published records, newest first.
func (s *Store) Archives(ctx context.Context) ([]model.Archive, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT year, month, COUNT(*) FROM news
		WHERE published = 1 AND year > 0
		GROUP BY year, month
		ORDER BY year DESC, month DESC`)
	if err != nil {
		return nil, storeError("failed to query archives", err)
	}
	defer rows.Close()

	archives := []model.Archive{}
	for rows.Next() {
		var a model.Archive
		if err := rows.Scan(&a.Year, &a.Month, &a.Count); err != nil {
			return nil, storeError("failed to scan archive", err)
		}
		a.DisplayDate = a.Label()
		archives = append(archives, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to read archives", err)
	}
	return archives, nil
}

// ArchiveNews returns the published records of one bucket, newest first.
func (s *Store) ArchiveNews(ctx context.Context, year, month int) ([]model.News, error) {
	bucket := model.Archive{Year: year, Month: month}
	if err := bucket.Validate(); err != nil {
		return nil, &news.Error{Kind: news.KindPrecondition, Message: "invalid archive bucket", Err: err}
	}

	return s.queryNews(ctx,
		"SELECT "+newsColumns+" FROM news WHERE published = 1 AND year = ? AND month = ? ORDER BY sort_key DESC, id",
		year, month,
	)
}

// Categories returns every category name in use, sorted.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT name FROM news_categories WHERE TRIM(name) != '' ORDER BY name")
	if err != nil {
		return nil, storeError("failed to query categories", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storeError("failed to scan category", err)
		}
		categories = append(categories, name)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to read categories", err)
	}
	return categories, nil
}

// Count returns the number of records held.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM news").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count news: %w", err)
	}
	return n, nil
}

// Prune deletes records dated before the cutoff and returns how many went.
// Records without a usable date are kept.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := before.UnixMilli()
	_, err = tx.ExecContext(ctx, `
		DELETE FROM news_categories WHERE news_id IN (
			SELECT id FROM news WHERE sort_key > 0 AND sort_key < ?
		)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune categories: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM news WHERE sort_key > 0 AND sort_key < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune news: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned news: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return removed, nil
}

// queryNews runs a news query and attaches categories. Categories are read
// after the rows are closed so a single connection suffices.
func (s *Store) queryNews(ctx context.Context, query string, args ...any) ([]model.News, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("failed to query news", err)
	}

	items := []model.News{}
	for rows.Next() {
		var n model.News
		var published int
		err := rows.Scan(&n.ID, &n.Slug, &n.Title, &n.Excerpt, &n.Content, &n.Image, &n.Author,
			&n.PublishedAt, &n.Date, &published, &n.CreatedAt, &n.UpdatedAt)
		if err != nil {
			rows.Close()
			return nil, storeError("failed to scan news", err)
		}
		n.Published = intToBool(published)
		n.Categories = []string{}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storeError("failed to read news", err)
	}
	rows.Close()

	if err := s.attachCategories(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// categoryBatch bounds the ids bound into one category query, keeping
// well under SQLite's host parameter limit.
const categoryBatch = 500

func (s *Store) attachCategories(ctx context.Context, items []model.News) error {
	if len(items) == 0 {
		return nil
	}

	index := make(map[string]int, len(items))
	for i, n := range items {
		index[n.ID] = i
	}

	for start := 0; start < len(items); start += categoryBatch {
		end := min(start+categoryBatch, len(items))
		if err := s.attachCategoryBatch(ctx, items, index, items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) attachCategoryBatch(ctx context.Context, items []model.News, index map[string]int, batch []model.News) error {
	args := make([]any, 0, len(batch))
	for _, n := range batch {
		args = append(args, n.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

	rows, err := s.db.QueryContext(ctx,
		"SELECT news_id, name FROM news_categories WHERE news_id IN ("+placeholders+") ORDER BY news_id, position",
		args...,
	)
	if err != nil {
		return storeError("failed to query categories", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return storeError("failed to scan category", err)
		}
		if i, ok := index[id]; ok {
			items[i].Categories = append(items[i].Categories, name)
		}
	}
	if err := rows.Err(); err != nil {
		return storeError("failed to read categories", err)
	}
	return nil
}

// storeError reports a database failure as a transport-kind news error so
// callers treat the mirror like an unreachable API.
func storeError(msg string, err error) error {
	return &news.Error{Kind: news.KindTransport, Message: msg, Err: err}
}

// SQLite has no BOOLEAN type.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}
