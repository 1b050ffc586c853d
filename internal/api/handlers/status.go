package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
	"github.com/mmmaly/chcemvediet-sub000/pkg/metrics"
)

// StatusHandler exposes process counters and recent log rows for operators.
type StatusHandler struct {
	collector  *metrics.Collector
	logService *services.LogService
}

// NewStatusHandler creates a new StatusHandler instance.
func NewStatusHandler(collector *metrics.Collector, logService *services.LogService) *StatusHandler {
	return &StatusHandler{collector: collector, logService: logService}
}

// Metrics returns the in-process counters.
// GET /api/status/metrics
func (h *StatusHandler) Metrics(c *gin.Context) {
	respondOK(c, gin.H{
		"counters": h.collector.Counters(),
	})
}

// Logs returns the most recent log rows.
// GET /api/status/logs?limit=...
func (h *StatusHandler) Logs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := h.logService.ListRecent(limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"logs": logs})
}
