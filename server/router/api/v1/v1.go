// Package v1 exposes the cache service over HTTP for operational use: content
// reads, manual sync and invalidation, stats, health, and an RSS rendering of
// the content history. Content consumption by the app itself goes through the
// service facade directly; this API exists for operators and integrations.
package v1

import (
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/todayfeed/internal/profile"
	"github.com/hrygo/todayfeed/server"
	"github.com/hrygo/todayfeed/server/middleware"
)

type APIV1Service struct {
	Profile *profile.Profile
	Service *server.Service
}

func NewAPIV1Service(profile *profile.Profile, service *server.Service) *APIV1Service {
	return &APIV1Service{
		Profile: profile,
		Service: service,
	}
}

// NewEcho builds an echo instance with the service routes registered.
func (s *APIV1Service) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.NewRateLimiter(100*time.Millisecond, 20).Middleware())

	s.Register(e)
	return e
}

// Register attaches all routes to the given echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	e.GET("/healthz", s.GetHealthz)

	g := e.Group("/api/v1")
	g.GET("/today", s.GetToday)
	g.GET("/previous", s.GetPreviousDay)
	g.GET("/fallback", s.GetFallback)
	g.GET("/history", s.GetHistory)
	g.GET("/history.rss", s.GetHistoryFeed)
	g.POST("/content", s.PostContent)
	g.POST("/content/:id/viewed", s.PostContentViewed)
	g.POST("/interactions", s.PostInteraction)
	g.POST("/sync", s.PostSync)
	g.POST("/sync/background", s.PostBackgroundSync)
	g.POST("/cache/invalidate", s.PostInvalidate)
	g.POST("/cache/cleanup", s.PostCleanup)
	g.DELETE("/cache", s.DeleteCache)
	g.GET("/stats", s.GetStats)
	g.GET("/diagnostics", s.GetDiagnostics)
}
