package v1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/todayfeed/internal/profile"
	"github.com/hrygo/todayfeed/server"
	"github.com/hrygo/todayfeed/server/scheduler"
	"github.com/hrygo/todayfeed/server/syncer"
	"github.com/hrygo/todayfeed/server/timezone"
	"github.com/hrygo/todayfeed/store/db/memory"
)

func newTestAPI(t *testing.T) (*APIV1Service, *echo.Echo, *server.Service) {
	t.Helper()
	p := &profile.Profile{}
	p.FromEnv()
	require.NoError(t, p.Validate())

	clock := timezone.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	svc, err := server.NewService(context.Background(), p, server.Options{
		Driver:  memory.NewDriver(),
		Clock:   clock,
		Monitor: syncer.NewFakeMonitor(syncer.StatusOnline),
		Timers:  scheduler.NewFakeTimers().Factory,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Dispose)

	api := NewAPIV1Service(p, svc)
	e := echo.New()
	api.Register(e)
	return api, e, svc
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetTodayLifecycle(t *testing.T) {
	_, e, _ := newTestAPI(t)

	rec := do(e, http.MethodGet, "/api/v1/today", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := `{"content":{"id":"item-1","title":"Daily Insight","summary":"Walk more.","content_date":"2026-08-20","confidence_score":0.9},"fromApi":true}`
	rec = do(e, http.MethodPost, "/api/v1/content", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"needsRefresh":false`)

	rec = do(e, http.MethodGet, "/api/v1/today", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"item-1"`)
}

func TestPostContentValidation(t *testing.T) {
	_, e, _ := newTestAPI(t)

	rec := do(e, http.MethodPost, "/api/v1/content", `{"content":{"title":"no id"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/content", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInteractionAndSync(t *testing.T) {
	_, e, svc := newTestAPI(t)

	rec := do(e, http.MethodPost, "/api/v1/interactions", `{"type":"view","contentId":"item-1"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, svc.CacheStats(context.Background()).PendingInteractions)

	rec = do(e, http.MethodPost, "/api/v1/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"started":true`)
	assert.Equal(t, 0, svc.CacheStats(context.Background()).PendingInteractions)
}

func TestInteractionValidation(t *testing.T) {
	_, e, _ := newTestAPI(t)

	rec := do(e, http.MethodPost, "/api/v1/interactions", `{"type":"view"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzAndStats(t *testing.T) {
	_, e, _ := newTestAPI(t)

	rec := do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status"`)

	rec = do(e, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_bytes"`)

	rec = do(e, http.MethodGet, "/api/v1/diagnostics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"schedulerState"`)
}

func TestHistoryFeed(t *testing.T) {
	_, e, _ := newTestAPI(t)

	body := `{"content":{"id":"item-1","title":"Daily Insight","summary":"Walk more.","content_date":"2026-08-20","confidence_score":0.9},"fromApi":true}`
	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/api/v1/content", body).Code)

	rec := do(e, http.MethodGet, "/api/v1/history.rss", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/rss+xml")
	assert.Contains(t, rec.Body.String(), "Daily Insight")
	assert.Contains(t, rec.Body.String(), "<rss")
}

func TestClearCache(t *testing.T) {
	_, e, _ := newTestAPI(t)

	body := `{"content":{"id":"item-1","title":"Daily Insight","summary":"Walk more.","content_date":"2026-08-20","confidence_score":0.9},"fromApi":true}`
	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/api/v1/content", body).Code)

	rec := do(e, http.MethodDelete, "/api/v1/cache", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/today", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidateEndpoint(t *testing.T) {
	_, e, _ := newTestAPI(t)

	body := `{"content":{"id":"item-1","title":"Daily Insight","summary":"Walk more.","content_date":"2026-08-20","confidence_score":0.9},"fromApi":true}`
	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/api/v1/content", body).Code)

	rec := do(e, http.MethodPost, "/api/v1/cache/invalidate", `{"flags":{"today":true},"reason":"operator request"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/today", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
