package notification

import (
	"context"

	"SafeSignal/pkg/logger"

	"go.uber.org/zap"
)

// LogPushClient 把推送写进结构化日志的实现。
// 默认部署（没接服务商）用它，投递视为成功，便于端到端联调。
type LogPushClient struct{}

func (LogPushClient) Push(ctx context.Context, endpoint string, payload PushPayload) error {
	logger.Info("push notification",
		zap.String("endpoint", endpoint),
		zap.String("emergency_id", payload.EmergencyID),
		zap.String("title", payload.Title),
		zap.String("tag", payload.Tag))
	return nil
}

// NewClient 按配置选择服务商实现；未知或 "none" 返回 nil（投递全部失败并计数）
func NewClient(provider string) PushClient {
	switch provider {
	case "", "log":
		return LogPushClient{}
	default:
		return nil
	}
}
