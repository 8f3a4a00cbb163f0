package dispatch

import (
	"context"
	"fmt"
	"time"

	"SafeSignal/internal/match"
	"SafeSignal/internal/models"
	"SafeSignal/pkg/cache"
	"SafeSignal/pkg/errors"
	"SafeSignal/pkg/logger"
	"SafeSignal/pkg/notification"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Observer 派发指标，pkg/metrics.Metrics 满足该接口
type Observer interface {
	DispatchAttempted(alertType string)
	DispatchDelivered(alertType string)
	DispatchFailed(alertType string)
	DispatchSkipped(alertType string)
}

// Result 一次派发的聚合结果。单条投递失败不中断整轮。
type Result struct {
	Matched   int `json:"matched"`
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"`
}

// Dispatcher 按 (alertId, version, responderId) 幂等地向匹配到的响应者推送。
//
// 幂等账本分两层：进程内 LRU 挡掉热路径重复，共享缓存（redis/gocache）
// 的 SetNX 做跨实例去重。两层都只记键，不记结果。
type Dispatcher struct {
	matcher   *match.Matcher
	subs      *SubscriptionStore
	pusher    *notification.Pusher
	ledger    cache.Cache
	local     *lru.Cache[string, struct{}]
	observer  Observer
	radiusKm  float64
	ledgerTTL time.Duration
}

type Option func(*Dispatcher)

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

func WithRadius(radiusKm float64) Option {
	return func(d *Dispatcher) {
		if radiusKm > 0 {
			d.radiusKm = radiusKm
		}
	}
}

func WithLedgerTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) {
		if ttl > 0 {
			d.ledgerTTL = ttl
		}
	}
}

func NewDispatcher(matcher *match.Matcher, subs *SubscriptionStore, pusher *notification.Pusher, ledger cache.Cache, opts ...Option) *Dispatcher {
	local, _ := lru.New[string, struct{}](4096)
	d := &Dispatcher{
		matcher:   matcher,
		subs:      subs,
		pusher:    pusher,
		ledger:    ledger,
		local:     local,
		radiusKm:  match.DefaultRadiusKm,
		ledgerTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch 对一个警报版本执行一轮推送。
// 同一 (alertId, version, responderId) 只会尝试一次，重放返回 Skipped。
func (d *Dispatcher) Dispatch(ctx context.Context, alert models.Alert) Result {
	candidates := d.matcher.Match(alert, match.Query{RadiusKm: d.radiusKm})
	result := Result{Matched: len(candidates)}

	for _, c := range candidates {
		sub, ok := d.subs.Get(c.UserID)
		if !ok {
			continue // 没有订阅就不算一次尝试
		}
		f := Filters(sub)
		if !filtersAllow(f, c.Type, c.DistanceKm) {
			continue
		}
		endpoint := Endpoint(sub.SubscriptionData)
		if endpoint == "" {
			logger.Warn("订阅数据缺少 endpoint，跳过投递", zap.String("user_id", c.UserID))
			continue
		}

		// 确认可投递之后再占用幂等键，避免把迟到的订阅锁在账本外
		key := ledgerKey(alert.ID, alert.Version, c.ResponderID)
		if !d.claim(ctx, key) {
			result.Skipped++
			if d.observer != nil {
				d.observer.DispatchSkipped(string(alert.Type))
			}
			continue
		}

		result.Attempted++
		if d.observer != nil {
			d.observer.DispatchAttempted(string(alert.Type))
		}

		if err := d.pusher.Push(ctx, endpoint, buildPayload(alert, c, f)); err != nil {
			// 尽力投递：记录失败，继续下一个响应者
			derr := errors.Delivery(err, c.ResponderID)
			logger.Warn("push delivery failed",
				zap.String("alert_id", alert.ID),
				zap.Int64("version", alert.Version),
				zap.Error(derr))
			if d.observer != nil {
				d.observer.DispatchFailed(string(alert.Type))
			}
			continue
		}

		result.Delivered++
		if d.observer != nil {
			d.observer.DispatchDelivered(string(alert.Type))
		}
	}

	logger.Info("dispatch round finished",
		zap.String("alert_id", alert.ID),
		zap.Int64("version", alert.Version),
		zap.Int("matched", result.Matched),
		zap.Int("attempted", result.Attempted),
		zap.Int("delivered", result.Delivered))
	return result
}

// claim 占用幂等键；false 表示该键已被本轮或别的实例用过
func (d *Dispatcher) claim(ctx context.Context, key string) bool {
	if _, dup := d.local.Get(key); dup {
		return false
	}
	d.local.Add(key, struct{}{})

	if d.ledger == nil {
		return true
	}
	ok, err := d.ledger.SetNX(ctx, key, 1, d.ledgerTTL)
	if err != nil {
		// 账本不可用时退化成仅进程内去重，宁可多推不可漏推
		logger.Warn("idempotency ledger unavailable", zap.Error(err))
		return true
	}
	return ok
}

func ledgerKey(alertID string, version int64, responderID string) string {
	return fmt.Sprintf("dispatch:%s:%d:%s", alertID, version, responderID)
}

func buildPayload(alert models.Alert, c match.Candidate, f models.SubscriptionFilters) notification.PushPayload {
	types := make([]string, 0, len(f.ResponderTypes))
	for _, t := range f.ResponderTypes {
		types = append(types, string(t))
	}
	return notification.PushPayload{
		Title:       payloadTitle(alert.Type, c.Severity),
		Body:        alert.Message,
		EmergencyID: alert.ID,
		VictimID:    alert.UserID,
		VictimName:  alert.UserName,
		Location: notification.PayloadLocation{
			Latitude:  alert.Lat,
			Longitude: alert.Lng,
		},
		ResponderTypes:     types,
		RadiusKm:           f.RadiusKm,
		Tag:                "emergency-" + alert.ID,
		RequireInteraction: c.Severity == match.SeverityCritical,
		Actions: []notification.PayloadAction{
			{Action: "respond", Title: "Respond"},
			{Action: "view", Title: "View"},
		},
	}
}

func payloadTitle(typ models.AlertType, severity match.Severity) string {
	switch severity {
	case match.SeverityCritical:
		return fmt.Sprintf("🚨 Emergency nearby: %s", typ)
	case match.SeverityHigh:
		return fmt.Sprintf("⚠️ Alert nearby: %s", typ)
	default:
		return fmt.Sprintf("Alert in your area: %s", typ)
	}
}
