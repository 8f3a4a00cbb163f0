package realtime

import (
	"time"

	"SafeSignal/internal/models"
)

// EventType 实时事件的封闭集合。消费者应当穷举处理所有类型。
type EventType string

const (
	EventAlertUpdated    EventType = "alert.updated"
	EventResponderJoined EventType = "responder.joined"
	EventResponderLeft   EventType = "responder.left"
	EventResponderStatus EventType = "responder.status_changed"
)

// Event 单个警报主题上的一条事件。
// Type 决定哪个负载字段非空，其余字段恒为 nil。
type Event struct {
	Type      EventType `json:"type"`
	AlertID   string    `json:"alert_id"`
	Seq       int64     `json:"seq"` // 主题内单调递增
	Timestamp time.Time `json:"timestamp"`

	AlertUpdated *AlertUpdatedPayload `json:"alert_updated,omitempty"`
	Responder    *ResponderPayload    `json:"responder,omitempty"`
}

// AlertUpdatedPayload 警报状态/版本变化
type AlertUpdatedPayload struct {
	Status  models.AlertStatus `json:"status"`
	Version int64              `json:"version"`
}

// ResponderPayload 响应者加入/离开/状态变化
type ResponderPayload struct {
	ResponderID string               `json:"responder_id"`
	Status      models.SessionStatus `json:"status,omitempty"`
	Count       int                  `json:"count"` // 事件发生后的主题内响应者数
}

// Snapshot 重连后先拉快照再续流
type Snapshot struct {
	Alert          models.Alert `json:"alert"`
	ResponderCount int          `json:"responder_count"`
	Seq            int64        `json:"seq"`
}
