package handlers

import (
	"strconv"

	"SafeSignal/internal/alerts"
	"SafeSignal/internal/match"
	"SafeSignal/internal/models"
	"SafeSignal/pkg/response"

	"github.com/gin-gonic/gin"
)

// 创建警报的请求体
type startEmergencyRequest struct {
	UserID   string  `json:"user_id" binding:"required"`
	UserName string  `json:"user_name"`
	Type     string  `json:"type" binding:"required"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
	Message  string  `json:"message"`
	VideoURL string  `json:"video_url"`
}

// StartEmergency 创建警报并触发一轮派发
func (h *Handlers) StartEmergency(c *gin.Context) {
	var req startEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}

	alert, err := h.store.Create(c, models.Alert{
		UserID:   req.UserID,
		UserName: req.UserName,
		Type:     models.AlertType(req.Type),
		Lat:      req.Lat,
		Lng:      req.Lng,
		Accuracy: req.Accuracy,
		Message:  req.Message,
		VideoURL: req.VideoURL,
	})
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Created(c, "emergency started", alert)
}

// GetEmergency 单条警报
func (h *Handlers) GetEmergency(c *gin.Context) {
	alert, err := h.store.Get(c.Param("id"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "get emergency", alert)
}

// ListEmergencies 按状态/用户过滤的列表
func (h *Handlers) ListEmergencies(c *gin.Context) {
	list := h.store.List(alerts.ListFilter{
		Status: models.AlertStatus(c.Query("status")),
		UserID: c.Query("user_id"),
	})
	response.Success(c, "list emergencies", list)
}

// EmergencyHistory 数据库里的历史记录（含已终结的）
func (h *Handlers) EmergencyHistory(c *gin.Context) {
	if h.archive == nil {
		response.Success(c, "history unavailable without database", []models.Alert{})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.archive.ListAlertHistory(c, c.Query("user_id"), limit)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "emergency history", list)
}

// MatchEmergency 即席匹配查询，不触发推送
func (h *Handlers) MatchEmergency(c *gin.Context) {
	alert, err := h.store.Get(c.Param("id"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}

	radius, _ := strconv.ParseFloat(c.Query("radius_km"), 64)
	var types []models.ResponderType
	for _, t := range c.QueryArray("responder_type") {
		types = append(types, models.ResponderType(t))
	}

	candidates := h.matcher.Match(alert, match.Query{
		RadiusKm:       radius,
		ResponderTypes: types,
		Severity:       match.Severity(c.Query("severity")),
		Text:           c.Query("q"),
	})
	response.Success(c, "match emergency", candidates)
}

// AcceptEmergency 响应者接手；竞争失败返回 409
func (h *Handlers) AcceptEmergency(c *gin.Context) {
	var req struct {
		ResponderID string `json:"responder_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}

	s, err := h.sessions.Accept(c, c.Param("id"), req.ResponderID)
	if err != nil {
		response.FailWithError(c, err)
		return
	}

	alert, _ := h.store.Get(c.Param("id"))
	response.Success(c, "emergency accepted", gin.H{
		"alert":          alert,
		"session_status": s.Status(),
	})
}

// ResolveEmergency 标记已解决
func (h *Handlers) ResolveEmergency(c *gin.Context) {
	alert, err := h.store.Resolve(c, c.Param("id"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "emergency resolved", alert)
}

// CancelEmergency 受害者撤销警报
func (h *Handlers) CancelEmergency(c *gin.Context) {
	alert, err := h.store.Cancel(c, c.Param("id"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "emergency cancelled", alert)
}
