package handlers

import (
	"net/http"

	"SafeSignal/internal/alerts"
	"SafeSignal/internal/models"

	"github.com/gin-gonic/gin"
)

// HealthCheck 存活探针，顺带暴露几个关键水位
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"active_alerts":   len(h.store.List(alerts.ListFilter{Status: models.AlertStatusActive})),
		"responders":      h.registry.Count(),
		"active_sessions": h.sessions.Count(),
		"subscriptions":   h.subs.Count(),
	})
}
