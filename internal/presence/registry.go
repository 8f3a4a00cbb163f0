package presence

import (
	"context"
	"sync"
	"time"

	"SafeSignal/internal/geo"
	"SafeSignal/internal/models"
	"SafeSignal/pkg/errors"
	"SafeSignal/pkg/logger"

	"go.uber.org/zap"
)

// Persister 将位置记录镜像到外部存储。失败只记日志，内存状态仍是权威。
type Persister interface {
	SavePresence(p models.ResponderPresence) error
}

// Registry 保存每个响应者最近一次上报的位置与可用状态。
// 后写覆盖；超过 staleAfter 未更新的记录对查询不可见。
type Registry struct {
	mu         sync.RWMutex
	records    map[string]models.ResponderPresence
	staleAfter time.Duration
	persister  Persister
	now        func() time.Time
}

type Option func(*Registry)

// WithPersister 可选的落库协作方
func WithPersister(p Persister) Option {
	return func(r *Registry) { r.persister = p }
}

// WithStaleWindow 配置过期窗口；<=0 表示不过期（遗留行为）
func WithStaleWindow(d time.Duration) Option {
	return func(r *Registry) { r.staleAfter = d }
}

// WithClock 测试用
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		records:    make(map[string]models.ResponderPresence),
		staleAfter: 2 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert 整条覆盖同 responderId 的旧记录
func (r *Registry) Upsert(p models.ResponderPresence) error {
	if p.ResponderID == "" {
		return errors.Validation("responder id is required")
	}
	if !geo.ValidCoordinates(p.Lat, p.Lng) {
		return errors.Validation("invalid coordinates: lat=%v lng=%v", p.Lat, p.Lng)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = r.now()
	}

	r.mu.Lock()
	r.records[p.ResponderID] = p
	r.mu.Unlock()

	r.mirror(p)
	return nil
}

// SetAvailable 切换可用状态；记录不存在时报 NotFound
func (r *Registry) SetAvailable(responderID string, available bool) error {
	r.mu.Lock()

	p, ok := r.records[responderID]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("no presence for responder %s", responderID)
	}
	p.Available = available
	p.UpdatedAt = r.now()
	r.records[responderID] = p
	r.mu.Unlock()

	r.mirror(p)
	return nil
}

// mirror 镜像到外部存储；失败不影响内存权威状态
func (r *Registry) mirror(p models.ResponderPresence) {
	if r.persister == nil {
		return
	}
	if err := r.persister.SavePresence(p); err != nil {
		logger.Warn("presence persist failed",
			zap.String("responder_id", p.ResponderID), zap.Error(err))
	}
}

// Remove 停止播报或登出时删除记录
func (r *Registry) Remove(responderID string) {
	r.mu.Lock()
	delete(r.records, responderID)
	r.mu.Unlock()
}

// Get 单条读取
func (r *Registry) Get(responderID string) (models.ResponderPresence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.records[responderID]
	return p, ok
}

// Query 返回半径内、可用且未过期的记录，顺序不保证（排序是 matcher 的职责）
func (r *Registry) Query(center models.Location, radiusKm float64, types []models.ResponderType) []models.ResponderPresence {
	if radiusKm <= 0 {
		return nil
	}

	var typeSet map[models.ResponderType]bool
	if len(types) > 0 {
		typeSet = make(map[models.ResponderType]bool, len(types))
		for _, t := range types {
			typeSet[t] = true
		}
	}

	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.ResponderPresence
	for _, p := range r.records {
		if !p.Available {
			continue
		}
		if r.staleAfter > 0 && now.Sub(p.UpdatedAt) > r.staleAfter {
			continue
		}
		if typeSet != nil && !typeSet[p.ResponderType] {
			continue
		}
		if geo.DistanceKm(center, p.Location()) > radiusKm {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Sweep 清除过期记录，由调度器周期触发
func (r *Registry) Sweep(ctx context.Context) {
	if r.staleAfter <= 0 {
		return
	}
	now := r.now()

	r.mu.Lock()
	removed := 0
	for id, p := range r.records {
		if now.Sub(p.UpdatedAt) > r.staleAfter {
			delete(r.records, id)
			removed++
		}
	}
	r.mu.Unlock()

	if removed > 0 {
		logger.Debug("presence sweep", zap.Int("removed", removed))
	}
}

// Count 当前记录数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
