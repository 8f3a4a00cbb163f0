package notification

import "context"

// PushPayload 推送负载，字段与 Web Push 客户端约定一致
type PushPayload struct {
	Title              string          `json:"title"`
	Body               string          `json:"body"`
	EmergencyID        string          `json:"emergency_id"`
	VictimID           string          `json:"victim_id"`
	VictimName         string          `json:"victim_name,omitempty"`
	Location           PayloadLocation `json:"location"`
	ResponderTypes     []string        `json:"responder_types,omitempty"`
	RadiusKm           float64         `json:"radius_km,omitempty"`
	Tag                string          `json:"tag"` // "emergency-{alertId}"，同警报的推送彼此折叠
	RequireInteraction bool            `json:"requireInteraction"`
	Actions            []PayloadAction `json:"actions,omitempty"`
}

type PayloadLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type PayloadAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// PushClient 由具体推送服务商实现（Web Push / FCM / JPush）
type PushClient interface {
	Push(ctx context.Context, endpoint string, payload PushPayload) error
}

// Pusher 绑定服务商客户端的薄封装
type Pusher struct {
	cli PushClient
}

func NewPusher(cli PushClient) *Pusher { return &Pusher{cli: cli} }

func (p *Pusher) Push(ctx context.Context, endpoint string, payload PushPayload) error {
	if p.cli == nil {
		return context.Canceled // 表示未配置客户端
	}
	return p.cli.Push(ctx, endpoint, payload)
}
