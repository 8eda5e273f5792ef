package observability

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminState is what the admin router reports about a running daemon.
type AdminState interface {
	Ready() bool
	Services() []uint16
}

// NewAdminRouter builds the HTTP side channel exposing health, readiness,
// the registered service list and prometheus metrics.
func NewAdminRouter(node string, corsOrigins []string, state AdminState) *gin.Engine {
	RegisterMetrics()
	started := time.Now()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(AdminAccess(node, ComponentLogger("admin")))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(started).String(),
			"node":   node,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		ready := state.Ready()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":  ready,
			"uptime": time.Since(started).String(),
			"node":   node,
		})
	})

	r.GET("/services", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"services": state.Services(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
