package v1

import (
	"fmt"
	"net/http"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"
)

// GetHistoryFeed renders the content history as RSS so the archive can be
// followed from any feed reader.
// GET /api/v1/history.rss
func (s *APIV1Service) GetHistoryFeed(c echo.Context) error {
	ctx := c.Request().Context()
	entries := s.Service.ContentHistory(ctx)

	base := fmt.Sprintf("http://%s", c.Request().Host)
	feed := &feeds.Feed{
		Title:       "Today Feed History",
		Link:        &feeds.Link{Href: base + "/api/v1/history"},
		Description: "Archived daily content items, newest first",
	}
	if len(entries) > 0 {
		feed.Updated = entries[0].ArchivedAt
	}

	for _, entry := range entries {
		description := entry.Item.Summary
		if entry.Item.RichContent != "" {
			description = entry.Item.RichContent
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          entry.Item.ID,
			Title:       fmt.Sprintf("%s (%s)", entry.Item.Title, entry.Item.ContentDate),
			Link:        &feeds.Link{Href: base + "/api/v1/history#" + entry.Item.ID},
			Description: description,
			Created:     entry.ArchivedAt,
		})
	}

	rss, err := feed.ToRss()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to render feed"})
	}
	return c.Blob(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(rss))
}
