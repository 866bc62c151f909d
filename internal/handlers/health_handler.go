package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is a storage backend that can report liveness
type Pinger interface {
	Ping() error
}

// HealthCheck reports ok when every backend answers its ping
func HealthCheck(backends map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		healthy := true
		for name, backend := range backends {
			if err := backend.Ping(); err != nil {
				checks[name] = "unhealthy: " + err.Error()
				healthy = false
				continue
			}
			checks[name] = "healthy"
		}

		status := http.StatusOK
		state := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":    state,
			"checks":    checks,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
