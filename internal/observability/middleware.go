package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// pollPaths are polled by supervisors and scrapers; they log at debug so
// the admin log only carries operator traffic.
var pollPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// AdminAccess records every admin request in the srvd_http metrics and
// logs one line per request. Polled paths log at debug, including a 503
// from /ready while the daemon starts. Other 4xx log at warn and 5xx at
// error. Unrouted paths share the "unmatched" label.
func AdminAccess(node string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(node, c.Request.Method, route, status, elapsed)

		var event *zerolog.Event
		switch {
		case pollPaths[route] && (status < 400 || status == http.StatusServiceUnavailable):
			event = logger.Debug()
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Info()
		}
		event.
			Str("node", node).
			Str("method", c.Request.Method).
			Str("route", route).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Msg("observability.AdminAccess request")
	}
}
