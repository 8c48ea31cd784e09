package metrics

import (
	"strconv"
	"time"

	pkgmetrics "splitEngine/pkg/metrics"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var RequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "http_requests_in_flight",
	Help: "HTTP requests currently being served",
})

func Init() {
	prometheus.MustRegister(RequestsInFlight)
}

// Middleware observes handler latency by route template so path parameters
// do not explode label cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			RequestsInFlight.Inc()
			defer RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			pkgmetrics.HTTPRequestDuration.
				WithLabelValues(route, c.Request().Method, strconv.Itoa(c.Response().Status)).
				Observe(time.Since(start).Seconds())

			return nil
		}
	}
}
