package dispatch

import (
	"context"

	"SafeSignal/internal/alerts"
	"SafeSignal/internal/models"
	"SafeSignal/internal/realtime"
)

// ChangeHook 把状态机迁移接到实时广播与推送派发上。
//
// 每次非终态迁移都重跑一轮匹配派发：幂等账本按 (alertId, version, responderId)
// 去重，所以同版本重放无害，新版本会再次触达半径内的响应者。
// 终态迁移只广播并关闭主题，不再推送。
func ChangeHook(d *Dispatcher, hub *realtime.Hub) alerts.ChangeHook {
	return func(ctx context.Context, alert models.Alert) {
		hub.PublishAlertUpdated(alert)
		if alert.Status.Terminal() {
			hub.CloseTopic(alert.ID)
			return
		}
		go d.Dispatch(context.Background(), alert)
	}
}
