package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check reports whether one dependency is reachable.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type HealthHandler struct {
	checks  []Check
	timeout time.Duration
}

func NewHealthHandler(checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for _, check := range h.checks {
		if err := check.Probe(ctx); err != nil {
			body[check.Name] = "unavailable"
			body["status"] = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		body[check.Name] = "connected"
	}
	c.JSON(status, body)
}
