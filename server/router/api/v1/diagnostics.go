package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetHealthz returns the scored health report. The HTTP status tracks the
// label so load balancers can act on it directly.
// GET /healthz
func (s *APIV1Service) GetHealthz(c echo.Context) error {
	report := s.Service.HealthStatus(c.Request().Context())
	status := http.StatusOK
	if report.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}

// GetStats returns the cache footprint summary.
// GET /api/v1/stats
func (s *APIV1Service) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Service.CacheStats(c.Request().Context()))
}

// GetDiagnostics returns the full operational snapshot.
// GET /api/v1/diagnostics
func (s *APIV1Service) GetDiagnostics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Service.DiagnosticInfo(c.Request().Context()))
}
