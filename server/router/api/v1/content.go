package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/todayfeed/server/cache"
)

// GetToday returns today's cached content.
// GET /api/v1/today?stale=true
func (s *APIV1Service) GetToday(c echo.Context) error {
	policy := cache.StrictToday
	if c.QueryParam("stale") == "true" {
		policy = cache.AllowStale
	}
	item := s.Service.TodayContent(c.Request().Context(), policy)
	if item == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no content for today"})
	}
	return c.JSON(http.StatusOK, item)
}

// GetPreviousDay returns the archived fallback slot.
// GET /api/v1/previous
func (s *APIV1Service) GetPreviousDay(c echo.Context) error {
	item := s.Service.PreviousDayContent(c.Request().Context())
	if item == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no fallback content"})
	}
	return c.JSON(http.StatusOK, item)
}

// FallbackResponse pairs fallback content with its provenance metadata.
type FallbackResponse struct {
	Content  *cache.ContentItem     `json:"content"`
	Metadata cache.FallbackMetadata `json:"metadata"`
}

// GetFallback returns the best available fallback with staleness metadata.
// GET /api/v1/fallback
func (s *APIV1Service) GetFallback(c echo.Context) error {
	item, meta := s.Service.FallbackContentWithMetadata(c.Request().Context())
	return c.JSON(http.StatusOK, FallbackResponse{Content: item, Metadata: meta})
}

// GetHistory returns the archived history, newest first.
// GET /api/v1/history
func (s *APIV1Service) GetHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Service.ContentHistory(c.Request().Context()))
}

// PostContentRequest is the body for caching new content.
type PostContentRequest struct {
	Content cache.ContentItem `json:"content"`
	FromAPI bool              `json:"fromApi"`
}

// PostContent writes a new item into today's slot.
// POST /api/v1/content
func (s *APIV1Service) PostContent(c echo.Context) error {
	var req PostContentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	if req.Content.ID == "" || req.Content.ContentDate == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content id and date are required"})
	}
	s.Service.CacheToday(c.Request().Context(), req.Content, req.FromAPI)
	return c.JSON(http.StatusOK, map[string]bool{
		"needsRefresh": s.Service.NeedsRefresh(c.Request().Context()),
	})
}

// PostContentViewed flags the item as engaged.
// POST /api/v1/content/:id/viewed
func (s *APIV1Service) PostContentViewed(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content id is required"})
	}
	s.Service.MarkContentAsViewed(c.Request().Context(), id)
	return c.NoContent(http.StatusNoContent)
}

// PostInteractionRequest is the body for queueing a user interaction.
type PostInteractionRequest struct {
	Type      string            `json:"type"`
	ContentID string            `json:"contentId"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// PostInteraction queues a user action for later delivery.
// POST /api/v1/interactions
func (s *APIV1Service) PostInteraction(c echo.Context) error {
	var req PostInteractionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	if req.Type == "" || req.ContentID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "type and contentId are required"})
	}
	if err := s.Service.QueueInteraction(c.Request().Context(), req.Type, req.ContentID, req.Extra); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to queue interaction"})
	}
	return c.NoContent(http.StatusAccepted)
}

// PostSync triggers a sync attempt.
// POST /api/v1/sync
func (s *APIV1Service) PostSync(c echo.Context) error {
	started := s.Service.SyncWhenOnline(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]bool{"started": started})
}

// PostBackgroundSyncRequest toggles connectivity-triggered sync.
type PostBackgroundSyncRequest struct {
	Enabled bool `json:"enabled"`
}

// PostBackgroundSync enables or disables automatic sync on connectivity
// transitions.
// POST /api/v1/sync/background
func (s *APIV1Service) PostBackgroundSync(c echo.Context) error {
	var req PostBackgroundSyncRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	s.Service.SetBackgroundSync(c.Request().Context(), req.Enabled)
	return c.NoContent(http.StatusNoContent)
}

// PostInvalidateRequest selects cache regions to drop.
type PostInvalidateRequest struct {
	Flags  cache.InvalidationFlags `json:"flags"`
	Reason string                  `json:"reason"`
}

// PostInvalidate removes the selected cache regions.
// POST /api/v1/cache/invalidate
func (s *APIV1Service) PostInvalidate(c echo.Context) error {
	var req PostInvalidateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}
	s.Service.InvalidateContent(c.Request().Context(), req.Flags, req.Reason)
	return c.NoContent(http.StatusNoContent)
}

// PostCleanup removes auxiliary regions, never today's slot.
// POST /api/v1/cache/cleanup
func (s *APIV1Service) PostCleanup(c echo.Context) error {
	var req PostInvalidateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	s.Service.SelectiveCleanup(c.Request().Context(), req.Flags)
	return c.NoContent(http.StatusNoContent)
}

// DeleteCache wipes all cached values.
// DELETE /api/v1/cache
func (s *APIV1Service) DeleteCache(c echo.Context) error {
	s.Service.ClearAllCache(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}
