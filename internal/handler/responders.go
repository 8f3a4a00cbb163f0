package handlers

import (
	"SafeSignal/internal/models"
	"SafeSignal/pkg/response"

	"github.com/gin-gonic/gin"
)

type reportLocationRequest struct {
	ResponderID   string  `json:"responder_id" binding:"required"`
	UserID        string  `json:"user_id"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	Available     *bool   `json:"available"`
	ResponderType string  `json:"responder_type"`
}

// ReportLocation 响应者位置心跳，整条覆盖旧记录
func (h *Handlers) ReportLocation(c *gin.Context) {
	var req reportLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}
	typ := models.ResponderType(req.ResponderType)
	if typ == "" {
		typ = models.ResponderTypeOther
	}

	err := h.registry.Upsert(models.ResponderPresence{
		ResponderID:   req.ResponderID,
		UserID:        req.UserID,
		Lat:           req.Lat,
		Lng:           req.Lng,
		Available:     available,
		ResponderType: typ,
	})
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "location reported", nil)
}

// SetAvailability 上下线切换，位置保持最近一次上报值
func (h *Handlers) SetAvailability(c *gin.Context) {
	var req struct {
		ResponderID string `json:"responder_id" binding:"required"`
		Available   bool   `json:"available"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}

	if err := h.registry.SetAvailable(req.ResponderID, req.Available); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "availability updated", nil)
}

// StopBroadcast 停止位置播报，记录立即删除
func (h *Handlers) StopBroadcast(c *gin.Context) {
	responderID := c.Query("responder_id")
	if responderID == "" {
		response.Fail(c, "responder_id is required", nil)
		return
	}
	h.registry.Remove(responderID)
	response.Success(c, "broadcast stopped", nil)
}
