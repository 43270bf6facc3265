// Package health serves the two liveness/readiness endpoints described in
// spec.md §4.4 rules 1-2. They are handled locally rather than proxied.
package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LivenessHandler reports that the process is running.
func LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "live"})
	}
}

// ReadinessHandler reports that the process is ready to serve traffic.
// Readiness is unconditional once the process has started; there are no
// dependency checks to run.
func ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
