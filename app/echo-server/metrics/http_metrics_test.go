package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	pkgmetrics "splitEngine/pkg/metrics"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareObservesRouteTemplate(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/v1/campaigns/:key", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/api/v1/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})

	pkgmetrics.HTTPRequestDuration.Reset()

	for _, key := range []string{"a", "b", "c"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/"+key, nil))
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fail", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 2, testutil.CollectAndCount(pkgmetrics.HTTPRequestDuration))
	assert.Equal(t, float64(0), testutil.ToFloat64(RequestsInFlight))
}
