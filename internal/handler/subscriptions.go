package handlers

import (
	"encoding/json"

	"SafeSignal/internal/models"
	"SafeSignal/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

type upsertSubscriptionRequest struct {
	UserID       string                      `json:"user_id" binding:"required"`
	Subscription json.RawMessage             `json:"subscription" binding:"required"`
	Filters      *models.SubscriptionFilters `json:"filters"`
}

// UpsertSubscription 注册或替换用户的推送订阅（PUT 语义）
func (h *Handlers) UpsertSubscription(c *gin.Context) {
	var req upsertSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}

	sub := models.NotificationSubscription{
		UserID:           req.UserID,
		SubscriptionData: datatypes.JSON(req.Subscription),
	}
	if req.Filters != nil {
		raw, err := json.Marshal(req.Filters)
		if err != nil {
			response.Fail(c, "invalid filters", nil)
			return
		}
		sub.Filters = datatypes.JSON(raw)
	}

	if err := h.subs.Upsert(sub); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "subscription saved", nil)
}

// DeleteSubscription 取消推送订阅
func (h *Handlers) DeleteSubscription(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.Fail(c, "user_id is required", nil)
		return
	}
	h.subs.Remove(userID)
	response.Success(c, "subscription removed", nil)
}
