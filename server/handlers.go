package server

import (
	"bytes"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/robertmeta/newsdesk/model"
	"github.com/robertmeta/newsdesk/news"
	"github.com/robertmeta/newsdesk/render"
	"github.com/robertmeta/newsdesk/view"
)

// ListResponse is a paginated list view plus its cards.
type ListResponse struct {
	view.Snapshot
	Cards []render.Card `json:"cards"`
}

// ArchiveResponse is an archive bucket view plus its cards.
type ArchiveResponse struct {
	view.ArchiveSnapshot
	Cards []render.Card `json:"cards"`
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.health)

	g := s.Echo.Group("/news")
	g.GET("", s.listNews)
	g.GET("/archives", s.archiveIndex)
	g.GET("/archives/:year/:month", s.archiveNews)
	g.GET("/search/:query", s.searchNews)
	g.GET("/category/:category", s.categoryNews)
	g.GET("/sidebar", s.sidebarContent)
	g.GET("/suggest", s.suggest)
	g.GET("/rss.xml", s.rss)
	g.GET("/:slug", s.detail)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listNews(c echo.Context) error {
	page, err := pageParam(c)
	if err != nil {
		return err
	}

	v := view.NewListing(s.src, s.viewOptions()...)
	defer v.Close()

	if err := v.Load(c.Request().Context()); err != nil {
		return err
	}
	if err := gotoPage(v.SetPage, page); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse(v.Snapshot()))
}

func (s *Server) archiveIndex(c echo.Context) error {
	archives, err := s.src.Archives(c.Request().Context())
	if err != nil {
		return &view.Failure{Message: "Failed to load archives. Please try again later.", Err: err}
	}
	model.SortArchives(archives)
	if archives == nil {
		archives = []model.Archive{}
	}
	return c.JSON(http.StatusOK, archives)
}

func (s *Server) archiveNews(c echo.Context) error {
	year, yerr := strconv.Atoi(c.Param("year"))
	month, merr := strconv.Atoi(c.Param("month"))
	if yerr != nil || merr != nil {
		return news.Precondition("Archive year and month must be numbers")
	}
	page, err := pageParam(c)
	if err != nil {
		return err
	}

	v := view.NewArchiveView(s.src, s.viewOptions()...)
	defer v.Close()

	if err := v.Load(c.Request().Context(), year, month); err != nil {
		return err
	}
	if err := gotoPage(v.SetPage, page); err != nil {
		return err
	}

	snap := v.Snapshot()
	return c.JSON(http.StatusOK, ArchiveResponse{
		ArchiveSnapshot: snap,
		Cards:           render.Cards(snap.Page.Items, snap.VisibleIDs),
	})
}

func (s *Server) searchNews(c echo.Context) error {
	page, err := pageParam(c)
	if err != nil {
		return err
	}

	v := view.NewSearchView(s.src, s.viewOptions()...)
	defer v.Close()

	if err := v.Load(c.Request().Context(), pathParam(c, "query")); err != nil {
		return err
	}
	if err := gotoPage(v.SetPage, page); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse(v.Snapshot()))
}

func (s *Server) categoryNews(c echo.Context) error {
	page, err := pageParam(c)
	if err != nil {
		return err
	}

	v := view.NewCategoryView(s.src, s.viewOptions()...)
	defer v.Close()

	if err := v.Load(c.Request().Context(), pathParam(c, "category")); err != nil {
		return err
	}
	if err := gotoPage(v.SetPage, page); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse(v.Snapshot()))
}

// sidebarContent serves the shared sidebar. It is fetched on first use or
// when refresh=true; a failed refresh still serves the content held.
func (s *Server) sidebarContent(c echo.Context) error {
	ctx := c.Request().Context()

	var err error
	if c.QueryParam("refresh") == "true" {
		err = s.sidebar.Load(ctx)
	} else {
		err = s.sidebar.EnsureLoaded(ctx)
	}
	if err != nil && !s.sidebar.Loaded() {
		return &view.Failure{Message: "Failed to load sidebar", Err: err}
	}
	return c.JSON(http.StatusOK, s.sidebar.Snapshot())
}

// suggest matches against the held sidebar content, so typing never hits
// the content source once the sidebar is loaded.
func (s *Server) suggest(c echo.Context) error {
	if err := s.sidebar.EnsureLoaded(c.Request().Context()); err != nil {
		s.logger.Warn("Suggesting without sidebar content", "error", err)
	}
	return c.JSON(http.StatusOK, s.sidebar.Suggest(c.QueryParam("q")))
}

func (s *Server) rss(c echo.Context) error {
	v := view.NewListing(s.src, s.viewOptions()...)
	defer v.Close()

	if err := v.Load(c.Request().Context()); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := render.RSS(&buf, s.cfg.Feed, v.Records()); err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "application/rss+xml; charset=utf-8", buf.Bytes())
}

func (s *Server) detail(c echo.Context) error {
	v := view.NewDetail(s.src, view.WithLogger(s.logger))
	defer v.Close()

	if err := v.Load(c.Request().Context(), pathParam(c, "slug")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v.Snapshot())
}

func listResponse(snap view.Snapshot) ListResponse {
	return ListResponse{
		Snapshot: snap,
		Cards:    render.Cards(snap.Page.Items, snap.VisibleIDs),
	}
}

// pathParam returns a path parameter with any percent-encoding the router
// left in place removed.
func pathParam(c echo.Context, name string) string {
	raw := c.Param(name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// pageParam reads the 1-based page query parameter, defaulting to 1.
func pageParam(c echo.Context) (int, error) {
	raw := strings.TrimSpace(c.QueryParam("page"))
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, news.Precondition("page must be a positive integer")
	}
	return page, nil
}

func gotoPage(setPage func(int) bool, page int) error {
	if page == 1 || setPage(page) {
		return nil
	}
	return news.NotFound("Page %d does not exist", page)
}
