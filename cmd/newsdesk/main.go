package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/robertmeta/newsdesk/config"
	"github.com/robertmeta/newsdesk/logging"
	"github.com/robertmeta/newsdesk/news"
	"github.com/robertmeta/newsdesk/render"
	"github.com/robertmeta/newsdesk/store"
	"github.com/robertmeta/newsdesk/view"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

// Output formats for --format.
const (
	FormatJSON  = "json"
	FormatTable = "table"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

func newApp() *cli.App {
	pageFlag := &cli.IntFlag{
		Name:    "page",
		Aliases: []string{"p"},
		Value:   1,
		Usage:   "Page to show",
	}

	return &cli.App{
		Name:    "newsdesk",
		Usage:   "Browse the studio news API from the terminal, mirror it offline and serve it as JSON",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{"NEWSDESK_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "api",
				Usage: "Content API base URL",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Offline mirror database file path",
			},
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "Read from the offline mirror instead of the API",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   FormatJSON,
				Usage:   "Output format: json or table",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List news articles",
				Flags:  []cli.Flag{pageFlag},
				Action: listNews,
			},
			{
				Name:      "show",
				Usage:     "Show an article and related articles",
				ArgsUsage: "<slug>",
				Action:    showNews,
			},
			{
				Name:      "search",
				Usage:     "Search articles",
				ArgsUsage: "<query>",
				Flags:     []cli.Flag{pageFlag},
				Action:    searchNews,
			},
			{
				Name:      "category",
				Usage:     "List the articles of a category",
				ArgsUsage: "<name>",
				Flags:     []cli.Flag{pageFlag},
				Action:    categoryNews,
			},
			{
				Name:      "archives",
				Usage:     "List archive months, or the articles of one month",
				ArgsUsage: "[<year> <month>]",
				Flags:     []cli.Flag{pageFlag},
				Action:    archives,
			},
			{
				Name:   "categories",
				Usage:  "List categories",
				Action: categories,
			},
			{
				Name:   "sidebar",
				Usage:  "Show archives, categories and recent posts",
				Action: sidebar,
			},
			{
				Name:      "suggest",
				Usage:     "Suggest search terms from recent titles and categories",
				ArgsUsage: "<term>",
				Action:    suggestTerms,
			},
			{
				Name:  "mirror",
				Usage: "Copy articles from the API into the offline mirror",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Usage:   "Maximum number of articles to copy (0 for all)",
					},
				},
				Action: mirror,
			},
			{
				Name:      "import",
				Usage:     "Import RSS, Atom or JSON feeds into the offline mirror",
				ArgsUsage: "[<feed-url>...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "opml",
						Usage: "OPML subscription list to import",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Category for uncategorized records of the feeds given as arguments",
					},
					&cli.StringFlag{
						Name:  "opml-out",
						Usage: "Write the imported subscriptions as OPML to this file",
					},
				},
				Action: importFeeds,
			},
			{
				Name:  "prune",
				Usage: "Delete old articles from the offline mirror",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "older-than",
						Usage:    "Age of articles to delete (e.g., 30d, 2w, 6m, 1y)",
						Required: true,
					},
				},
				Action: prune,
			},
			{
				Name:  "rss",
				Usage: "Write the article listing as an RSS feed",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: stdout)",
					},
				},
				Action: rss,
			},
			{
				Name:  "serve",
				Usage: "Serve the news views as a JSON API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "listen",
						Aliases: []string{"l"},
						Usage:   "Listen address",
					},
				},
				Action: serve,
			},
		},
	}
}

// env is the per-invocation state shared by commands.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	format string
}

// setup resolves configuration with flags applied last, and builds the
// logger. Logs go to the app's error writer so stdout stays parseable.
func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitUsageError)
	}

	if c.IsSet("api") {
		cfg.API.URL = c.String("api")
	}
	if c.IsSet("db") {
		cfg.Store.Path = c.String("db")
	}
	if c.IsSet("offline") {
		cfg.Offline = c.Bool("offline")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(fmt.Sprintf("Invalid configuration: %v", err), ExitUsageError)
	}

	format := c.String("format")
	if format != FormatJSON && format != FormatTable {
		return nil, cli.Exit(fmt.Sprintf("Unknown format %q: use json or table", format), ExitUsageError)
	}

	logger, err := logging.New(c.App.ErrWriter, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitUsageError)
	}
	slog.SetDefault(logger)

	return &env{cfg: cfg, logger: logger, out: c.App.Writer, format: format}, nil
}

func (e *env) viewOptions() []view.Option {
	return []view.Option{view.WithLogger(e.logger), view.WithPageSize(e.cfg.PageSize)}
}

// source returns the mirror when offline and the API client otherwise.
// The returned func releases it.
func (e *env) source() (news.Source, func(), error) {
	if e.cfg.Offline {
		s, err := e.store()
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}

	client, err := e.client()
	if err != nil {
		return nil, nil, err
	}
	return client, func() {}, nil
}

func (e *env) client() (*news.Client, error) {
	client, err := news.NewClient(e.cfg.API.URL,
		news.WithTimeout(e.cfg.API.Timeout),
		news.WithLogger(e.logger),
	)
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitUsageError)
	}
	return client, nil
}

func (e *env) store() (*store.Store, error) {
	dbPath := e.cfg.Store.Path

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to create database directory: %v", err), ExitDataError)
	}

	s, err := store.New(dbPath)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to open database: %v", err), ExitDataError)
	}
	return s, nil
}

// output writes v as JSON, or cards as a table when --format=table and
// the command has cards to show.
func (e *env) output(v any, cards []render.Card) error {
	if e.format == FormatTable && cards != nil {
		return render.Table(e.out, cards)
	}
	return render.JSON(e.out, v)
}

// exitError maps a failure to an exit code: rejected input is a usage
// error, anything the content source returned is a data error and a
// transport failure is a general error.
func exitError(err error) error {
	if news.IsCanceled(err) {
		return cli.Exit("Interrupted", ExitGeneralError)
	}

	msg := err.Error()
	var failure *view.Failure
	if errors.As(err, &failure) {
		msg = failure.Message
	}

	switch news.KindOf(err) {
	case news.KindPrecondition:
		return cli.Exit(msg, ExitUsageError)
	case news.KindTransport:
		return cli.Exit(msg, ExitGeneralError)
	default:
		return cli.Exit(msg, ExitDataError)
	}
}
