package handlers

import (
	"net/http"

	"github.com/LakePipiCAKA/self-discovery/internal/utils"

	"github.com/gin-gonic/gin"
)

// GetStatus reports system and pipeline statistics.
func (h *APIHandler) GetStatus(c *gin.Context) {
	stats := utils.GetSystemStats(h.pipeline)
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"cpu_usage":    stats.CPUUsage,
		"memory_alloc": utils.FormatBytes(stats.MemoryAlloc),
		"memory_sys":   utils.FormatBytes(stats.MemorySys),
		"go_routines":  stats.GoRoutines,
		"pipeline":     stats.Pipeline,
		"timestamp":    stats.Timestamp,
	})
}
