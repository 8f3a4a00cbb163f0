package models

import (
	"time"

	"gorm.io/datatypes"
)

// Location 经纬度坐标
type Location struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy,omitempty"`
}

// AlertType 警报类型
type AlertType string

const (
	AlertTypeSOS      AlertType = "sos"
	AlertTypeVideo    AlertType = "video"
	AlertTypeGoLive   AlertType = "go_live"
	AlertTypeMedical  AlertType = "medical"
	AlertTypeFire     AlertType = "fire"
	AlertTypeAccident AlertType = "accident"
)

// AlertStatus 警报生命周期状态
type AlertStatus string

const (
	AlertStatusActive     AlertStatus = "active"
	AlertStatusResponding AlertStatus = "responding"
	AlertStatusResolved   AlertStatus = "resolved"
	AlertStatusCancelled  AlertStatus = "cancelled"
)

// Terminal 终态不可再迁移
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusResolved || s == AlertStatusCancelled
}

// Alert 求助警报
type Alert struct {
	ID         string      `gorm:"primaryKey;column:id" json:"id"`
	UserID     string      `gorm:"column:user_id;index" json:"user_id"`
	UserName   string      `gorm:"column:user_name" json:"user_name,omitempty"`
	Type       AlertType   `gorm:"column:type" json:"type"`
	Status     AlertStatus `gorm:"column:status;index" json:"status"`
	Lat        float64     `gorm:"column:lat" json:"lat"`
	Lng        float64     `gorm:"column:lng" json:"lng"`
	Accuracy   float64     `gorm:"column:accuracy" json:"accuracy,omitempty"`
	Message    string      `gorm:"column:message" json:"message"`
	VideoURL   string      `gorm:"column:video_url" json:"video_url,omitempty"`
	AcceptedBy string      `gorm:"column:accepted_by" json:"accepted_by,omitempty"`
	Version    int64       `gorm:"column:version" json:"version"`
	CreatedAt  time.Time   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time   `gorm:"column:updated_at" json:"updated_at"`
}

func (Alert) TableName() string { return "alerts" }

// Location 警报位置
func (a *Alert) Location() Location {
	return Location{Lat: a.Lat, Lng: a.Lng, Accuracy: a.Accuracy}
}

// ResponderType 响应者类型
type ResponderType string

const (
	ResponderTypePolice  ResponderType = "police"
	ResponderTypeFire    ResponderType = "fire"
	ResponderTypeMedical ResponderType = "medical"
	ResponderTypeRescue  ResponderType = "rescue"
	ResponderTypeOther   ResponderType = "other"
)

// ResponderPresence 响应者最近一次上报的位置与可用状态。
// 每个 responder 只保留一条记录，后写覆盖，不留历史。
type ResponderPresence struct {
	ResponderID   string        `gorm:"primaryKey;column:id" json:"id"`
	UserID        string        `gorm:"column:user_id" json:"user_id"`
	Lat           float64       `gorm:"column:lat" json:"lat"`
	Lng           float64       `gorm:"column:lng" json:"lng"`
	Available     bool          `gorm:"column:available" json:"available"`
	ResponderType ResponderType `gorm:"column:responder_type" json:"responder_type"`
	UpdatedAt     time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

func (ResponderPresence) TableName() string { return "responders" }

func (p *ResponderPresence) Location() Location {
	return Location{Lat: p.Lat, Lng: p.Lng}
}

// SubscriptionFilters 通知过滤条件
type SubscriptionFilters struct {
	ResponderTypes   []ResponderType `json:"responder_types,omitempty"`
	RadiusKm         float64         `json:"radius_km,omitempty"`
	SoundEnabled     bool            `json:"sound_enabled"`
	VibrationEnabled bool            `json:"vibration_enabled"`
}

// NotificationSubscription 一个用户至多一条有效订阅（upsert 语义）。
// SubscriptionData 为服务商回执端点，对本核心不透明。
type NotificationSubscription struct {
	UserID           string         `gorm:"primaryKey;column:user_id" json:"user_id"`
	SubscriptionData datatypes.JSON `gorm:"column:subscription_data" json:"subscription_data"`
	Filters          datatypes.JSON `gorm:"column:filters" json:"filters"`
	UpdatedAt        time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (NotificationSubscription) TableName() string { return "notification_subscriptions" }

// SessionStatus 响应会话状态
type SessionStatus string

const (
	SessionAvailable SessionStatus = "available"
	SessionEnRoute   SessionStatus = "en_route"
	SessionOnScene   SessionStatus = "on_scene"
	SessionComplete  SessionStatus = "complete"
)
