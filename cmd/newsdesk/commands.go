package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/robertmeta/newsdesk/feed"
	"github.com/robertmeta/newsdesk/model"
	"github.com/robertmeta/newsdesk/news"
	"github.com/robertmeta/newsdesk/opml"
	"github.com/robertmeta/newsdesk/render"
	"github.com/robertmeta/newsdesk/server"
	"github.com/robertmeta/newsdesk/store"
	"github.com/robertmeta/newsdesk/view"
)

// withSource runs fn against the configured source.
func withSource(c *cli.Context, fn func(e *env, src news.Source) error) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	src, release, err := e.source()
	if err != nil {
		return err
	}
	defer release()
	return fn(e, src)
}

// withStore runs fn against the offline mirror regardless of --offline.
func withStore(c *cli.Context, fn func(e *env, s *store.Store) error) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	s, err := e.store()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(e, s)
}

func requireArg(c *cli.Context, usage string) (string, error) {
	arg := strings.TrimSpace(c.Args().First())
	if arg == "" {
		return "", cli.Exit("Usage: newsdesk "+usage, ExitUsageError)
	}
	return arg, nil
}

func gotoPage(setPage func(int) bool, page int) error {
	if page == 1 || setPage(page) {
		return nil
	}
	return cli.Exit(fmt.Sprintf("Page %d does not exist", page), ExitUsageError)
}

func (e *env) outputList(snap view.Snapshot) error {
	resp := server.ListResponse{
		Snapshot: snap,
		Cards:    render.Cards(snap.Page.Items, snap.VisibleIDs),
	}
	return e.output(resp, resp.Cards)
}

func listNews(c *cli.Context) error {
	return withSource(c, func(e *env, src news.Source) error {
		v := view.NewListing(src, e.viewOptions()...)
		defer v.Close()

		if err := v.Load(c.Context); err != nil {
			return exitError(err)
		}
		if err := gotoPage(v.SetPage, c.Int("page")); err != nil {
			return err
		}
		return e.outputList(v.Snapshot())
	})
}

func showNews(c *cli.Context) error {
	slug, err := requireArg(c, "show <slug>")
	if err != nil {
		return err
	}

	return withSource(c, func(e *env, src news.Source) error {
		v := view.NewDetail(src, view.WithLogger(e.logger))
		defer v.Close()

		if err := v.Load(c.Context, slug); err != nil {
			return exitError(err)
		}

		snap := v.Snapshot()
		items := append([]model.News{*snap.Article}, snap.Related...)
		return e.output(snap, render.Cards(items, nil))
	})
}

func searchNews(c *cli.Context) error {
	query, err := requireArg(c, "search <query>")
	if err != nil {
		return err
	}

	return withSource(c, func(e *env, src news.Source) error {
		v := view.NewSearchView(src, e.viewOptions()...)
		defer v.Close()

		if err := v.Load(c.Context, query); err != nil {
			return exitError(err)
		}
		if err := gotoPage(v.SetPage, c.Int("page")); err != nil {
			return err
		}
		return e.outputList(v.Snapshot())
	})
}

func categoryNews(c *cli.Context) error {
	category, err := requireArg(c, "category <name>")
	if err != nil {
		return err
	}

	return withSource(c, func(e *env, src news.Source) error {
		v := view.NewCategoryView(src, e.viewOptions()...)
		defer v.Close()

		if err := v.Load(c.Context, category); err != nil {
			return exitError(err)
		}
		if err := gotoPage(v.SetPage, c.Int("page")); err != nil {
			return err
		}
		return e.outputList(v.Snapshot())
	})
}

func archives(c *cli.Context) error {
	switch c.NArg() {
	case 0:
		return withSource(c, func(e *env, src news.Source) error {
			buckets, err := src.Archives(c.Context)
			if err != nil {
				return exitError(err)
			}
			model.SortArchives(buckets)
			if buckets == nil {
				buckets = []model.Archive{}
			}
			return e.output(buckets, nil)
		})
	case 2:
	default:
		return cli.Exit("Usage: newsdesk archives [<year> <month>]", ExitUsageError)
	}

	year, yerr := strconv.Atoi(c.Args().Get(0))
	month, merr := strconv.Atoi(c.Args().Get(1))
	if yerr != nil || merr != nil {
		return cli.Exit("Archive year and month must be numbers", ExitUsageError)
	}

	return withSource(c, func(e *env, src news.Source) error {
		v := view.NewArchiveView(src, e.viewOptions()...)
		defer v.Close()

		if err := v.Load(c.Context, year, month); err != nil {
			return exitError(err)
		}
		if err := gotoPage(v.SetPage, c.Int("page")); err != nil {
			return err
		}

		snap := v.Snapshot()
		resp := server.ArchiveResponse{
			ArchiveSnapshot: snap,
			Cards:           render.Cards(snap.Page.Items, snap.VisibleIDs),
		}
		return e.output(resp, resp.Cards)
	})
}

func categories(c *cli.Context) error {
	return withSource(c, func(e *env, src news.Source) error {
		names, err := src.Categories(c.Context)
		if err != nil {
			return exitError(err)
		}
		if names == nil {
			names = []string{}
		}
		return e.output(names, nil)
	})
}

func sidebar(c *cli.Context) error {
	return withSource(c, func(e *env, src news.Source) error {
		s := view.NewSidebar(src, view.WithLogger(e.logger))
		defer s.Close()

		if err := s.Load(c.Context); err != nil {
			return exitError(err)
		}
		snap := s.Snapshot()
		return e.output(snap, render.Cards(snap.Recent, nil))
	})
}

func suggestTerms(c *cli.Context) error {
	term, err := requireArg(c, "suggest <term>")
	if err != nil {
		return err
	}

	return withSource(c, func(e *env, src news.Source) error {
		s := view.NewSidebar(src, view.WithLogger(e.logger))
		defer s.Close()

		if err := s.Load(c.Context); err != nil {
			return exitError(err)
		}
		return e.output(s.Suggest(term), nil)
	})
}

// mirror copies the API listing into the offline mirror.
func mirror(c *cli.Context) error {
	return withStore(c, func(e *env, s *store.Store) error {
		client, err := e.client()
		if err != nil {
			return err
		}

		items, err := client.List(c.Context, news.ListOptions{Limit: c.Int("limit")})
		if err != nil {
			return exitError(err)
		}

		saved, err := s.SaveNews(c.Context, items...)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to save articles: %v", err), ExitDataError)
		}

		total, err := s.Count(c.Context)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to count articles: %v", err), ExitDataError)
		}

		e.logger.Info("Mirror updated", "saved", saved, "total", total)
		return e.output(map[string]any{
			"success": true,
			"saved":   saved,
			"total":   total,
		}, nil)
	})
}

type importResult struct {
	Title    string `json:"title,omitempty"`
	Category string `json:"category,omitempty"`
	Saved    int    `json:"saved"`
	Error    string `json:"error,omitempty"`
}

// importFeeds fetches feeds concurrently and saves their records into the
// offline mirror. A feed that fails does not stop the others.
func importFeeds(c *cli.Context) error {
	subs := make([]opml.Subscription, 0, c.NArg())
	for _, url := range c.Args().Slice() {
		subs = append(subs, opml.Subscription{URL: url, Category: c.String("category")})
	}

	if path := c.String("opml"); path != "" {
		listed, err := readOPML(path)
		if err != nil {
			return err
		}
		subs = append(subs, listed...)
	}

	if len(subs) == 0 {
		return cli.Exit("Usage: newsdesk import <feed-url>... [--opml file]", ExitUsageError)
	}

	return withStore(c, func(e *env, s *store.Store) error {
		fetcher := feed.NewFetcher(feed.WithTimeout(e.cfg.Import.Timeout))
		fetched := fetcher.FetchAll(c.Context, opml.Targets(subs), e.cfg.Import.Concurrency)

		results := make(map[string]importResult, len(fetched))
		imported, failed := 0, 0
		for i, r := range fetched {
			res := importResult{Category: r.Target.Category}
			if r.Err != nil {
				e.logger.Warn("Failed to fetch feed", "url", r.Target.URL, "error", r.Err)
				res.Error = r.Err.Error()
				results[r.Target.URL] = res
				failed++
				continue
			}

			res.Title = r.Source.Title
			if subs[i].Title == "" {
				subs[i].Title = r.Source.Title
			}

			saved, err := s.SaveNews(c.Context, r.Items...)
			if err != nil {
				e.logger.Warn("Failed to save feed records", "url", r.Target.URL, "error", err)
				res.Error = err.Error()
				failed++
			} else {
				res.Saved = saved
				imported += saved
			}
			results[r.Target.URL] = res
		}

		if path := c.String("opml-out"); path != "" {
			if err := writeOPML(path, subs); err != nil {
				return err
			}
		}

		return e.output(map[string]any{
			"success":  failed == 0,
			"feeds":    len(subs),
			"failed":   failed,
			"imported": imported,
			"results":  results,
		}, nil)
	})
}

func readOPML(path string) ([]opml.Subscription, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("Failed to open OPML file: %v", err), ExitDataError)
	}
	defer file.Close()

	subs, err := opml.Parse(file)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("Failed to parse OPML: %v", err), ExitDataError)
	}
	return subs, nil
}

func writeOPML(path string, subs []opml.Subscription) error {
	file, err := os.Create(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to create output file: %v", err), ExitDataError)
	}
	defer file.Close()

	if err := opml.Generate(file, subs, time.Now()); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to generate OPML: %v", err), ExitDataError)
	}
	return nil
}

func prune(c *cli.Context) error {
	cutoff, err := store.PruneCutoff(c.String("older-than"), time.Now())
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	return withStore(c, func(e *env, s *store.Store) error {
		deleted, err := s.Prune(c.Context, cutoff)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to prune articles: %v", err), ExitDataError)
		}
		return e.output(map[string]any{
			"success": true,
			"deleted": deleted,
			"before":  model.FormatTimestamp(cutoff),
		}, nil)
	})
}

func rss(c *cli.Context) error {
	return withSource(c, func(e *env, src news.Source) error {
		v := view.NewListing(src, e.viewOptions()...)
		defer v.Close()

		if err := v.Load(c.Context); err != nil {
			return exitError(err)
		}

		var buf bytes.Buffer
		if err := render.RSS(&buf, e.feedMeta(), v.Records()); err != nil {
			return cli.Exit(err.Error(), ExitGeneralError)
		}

		outputPath := c.String("output")
		if outputPath == "" {
			_, err := io.Copy(e.out, &buf)
			return err
		}

		if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
			return cli.Exit(fmt.Sprintf("Failed to write output file: %v", err), ExitDataError)
		}
		return e.output(map[string]any{
			"success": true,
			"file":    outputPath,
			"count":   len(v.Records()),
		}, nil)
	})
}

func (e *env) feedMeta() render.FeedMeta {
	return render.FeedMeta{
		Title:       e.cfg.RSS.Title,
		Link:        e.cfg.RSS.Link,
		Description: e.cfg.RSS.Description,
		Author:      e.cfg.RSS.Author,
	}
}

func serve(c *cli.Context) error {
	return withSource(c, func(e *env, src news.Source) error {
		listen := e.cfg.Server.Listen
		if c.IsSet("listen") {
			listen = c.String("listen")
		}

		srv := server.New(src, server.Config{
			Listen:          listen,
			ShutdownTimeout: e.cfg.Server.ShutdownTimeout,
			CORSOrigins:     e.cfg.Server.CORSOrigins,
			PageSize:        e.cfg.PageSize,
			Feed:            e.feedMeta(),
		}, e.logger)

		if err := srv.Run(c.Context); err != nil {
			return cli.Exit(err.Error(), ExitGeneralError)
		}
		return nil
	})
}
