package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"

	"github.com/barazo-forum/barazo-api-sub003/antispam"
	"github.com/barazo-forum/barazo-api-sub003/ingester"
	"github.com/barazo-forum/barazo-api-sub003/moderation"
	"github.com/barazo-forum/barazo-api-sub003/tracker"
)

// adminServer exposes health, metrics, repo tracking management, and the
// moderation review endpoints.
type adminServer struct {
	echo     *echo.Echo
	logger   *slog.Logger
	consumer *ingester.Consumer
	tracker  *tracker.Store
	queue    *moderation.Queue
	settings *antispam.SettingsLoader
}

func (s *adminServer) Start(address string) error {
	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.Use(slogecho.New(s.logger.With("component", "http")))

	s.echo.GET("/_health", s.handleHealthcheck)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/admin/repos/track", s.handleTrackRepos)
	s.echo.POST("/admin/repos/untrack", s.handleUntrackRepos)
	s.echo.GET("/admin/queue", s.handleListQueue)
	s.echo.POST("/admin/queue/:id/approve", s.handleReview(s.queue.Approve))
	s.echo.POST("/admin/queue/:id/reject", s.handleReview(s.queue.Reject))
	s.echo.POST("/admin/queue/:id/requeue", s.handleReview(s.queue.Requeue))
	s.echo.POST("/admin/communities/:community/invalidate-settings", s.handleInvalidateSettings)
	s.echo.Any("/debug/pprof/*", echo.WrapHandler(http.DefaultServeMux))
	return s.echo.Start(address)
}

func (s *adminServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *adminServer) handleHealthcheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":       "ok",
		"stream":       s.consumer.State().String(),
		"trackedRepos": strconv.Itoa(s.tracker.Size()),
	})
}

type repoListBody struct {
	Dids []string `json:"dids"`
}

func (s *adminServer) handleTrackRepos(c echo.Context) error {
	var body repoListBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	for _, did := range body.Dids {
		if err := s.tracker.Track(c.Request().Context(), did); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, map[string]int{"tracked": len(body.Dids)})
}

func (s *adminServer) handleUntrackRepos(c echo.Context) error {
	var body repoListBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	for _, did := range body.Dids {
		if err := s.tracker.Untrack(c.Request().Context(), did); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, map[string]int{"untracked": len(body.Dids)})
}

func (s *adminServer) handleListQueue(c echo.Context) error {
	community := c.QueryParam("community")
	if community == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "community query parameter is required")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := s.queue.ListPending(c.Request().Context(), community, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

// handleInvalidateSettings drops the cached settings for a community after an
// out-of-band configuration edit.
func (s *adminServer) handleInvalidateSettings(c echo.Context) error {
	community := c.Param("community")
	if err := s.settings.Invalidate(c.Request().Context(), community); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *adminServer) handleReview(action func(context.Context, uint, string) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid queue item id")
		}
		reviewer := c.QueryParam("reviewer")
		if reviewer == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "reviewer query parameter is required")
		}
		if err := action(c.Request().Context(), uint(id), reviewer); err != nil {
			if err == moderation.ErrItemNotFound {
				return echo.NewHTTPError(http.StatusNotFound, err.Error())
			}
			return err
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
