package alerts

import (
	"context"
	"sync"
	"time"

	"SafeSignal/internal/geo"
	"SafeSignal/internal/models"
	"SafeSignal/pkg/errors"
	"SafeSignal/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Persister 将警报镜像到外部存储。失败只记日志，内存状态仍是权威。
type Persister interface {
	SaveAlert(ctx context.Context, alert models.Alert) error
}

// ChangeHook 在每次成功迁移后调用（create 也算一次迁移）。
// 派发器和实时通道都挂在这里。
type ChangeHook func(ctx context.Context, alert models.Alert)

// Store 警报状态机。
//
// 迁移规则：
//
//	active --accept--> responding --resolve--> resolved
//	active --cancel--> cancelled
//	responding --cancel--> cancelled
//
// 终态（resolved/cancelled）不可再迁移。accept 通过版本比对保证并发下
// 恰好一个赢家，输家收到 ConflictError 而不是静默覆盖。
type Store struct {
	mu        sync.RWMutex
	hookMu    sync.Mutex // 串行化 afterChange，保证回调按 version 顺序看到迁移
	alerts    map[string]*models.Alert
	persister Persister
	hooks     []ChangeHook
	now       func() time.Time
}

type Option func(*Store)

func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		alerts: make(map[string]*models.Alert),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange 注册迁移回调；必须在并发使用前完成注册。
// 回调在内部串行锁下执行，不得回调 Store 自身的方法。
func (s *Store) OnChange(hook ChangeHook) { s.hooks = append(s.hooks, hook) }

// Create 新建警报，status=active，version=0
func (s *Store) Create(ctx context.Context, alert models.Alert) (models.Alert, error) {
	if !geo.ValidCoordinates(alert.Lat, alert.Lng) {
		return models.Alert{}, errors.Validation("invalid alert coordinates: lat=%v lng=%v", alert.Lat, alert.Lng)
	}
	switch alert.Type {
	case models.AlertTypeSOS, models.AlertTypeVideo, models.AlertTypeGoLive,
		models.AlertTypeMedical, models.AlertTypeFire, models.AlertTypeAccident:
	default:
		return models.Alert{}, errors.Validation("unknown alert type: %s", alert.Type)
	}

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	alert.Status = models.AlertStatusActive
	alert.Version = 0
	alert.CreatedAt = s.now()
	alert.UpdatedAt = alert.CreatedAt

	s.mu.Lock()
	if _, exists := s.alerts[alert.ID]; exists {
		s.mu.Unlock()
		return models.Alert{}, errors.Conflict("alert %s already exists", alert.ID)
	}
	stored := alert
	s.alerts[alert.ID] = &stored
	// hookMu 在释放 s.mu 之前获取：后到的迁移必须排在本次回调之后
	s.hookMu.Lock()
	s.mu.Unlock()

	logger.Info("alert created",
		zap.String("alert_id", alert.ID),
		zap.String("type", string(alert.Type)))

	s.afterChange(ctx, alert)
	s.hookMu.Unlock()
	return alert, nil
}

// Accept 仅在 active 时成功；同一 version 上的并发 accept 恰好一个赢
func (s *Store) Accept(ctx context.Context, alertID, responderID string) (models.Alert, error) {
	if responderID == "" {
		return models.Alert{}, errors.Validation("responder id is required")
	}

	s.mu.Lock()
	a, ok := s.alerts[alertID]
	if !ok {
		s.mu.Unlock()
		return models.Alert{}, errors.NotFound("alert %s not found", alertID)
	}
	if a.Status.Terminal() {
		s.mu.Unlock()
		return models.Alert{}, errors.InvalidTransition("alert %s is %s", alertID, a.Status)
	}
	if a.Status != models.AlertStatusActive {
		// 已有人接手；对第二个 accept 来说这是竞争失败而非非法迁移
		s.mu.Unlock()
		return models.Alert{}, errors.Conflict("alert %s already accepted by %s", alertID, a.AcceptedBy)
	}

	a.Status = models.AlertStatusResponding
	a.AcceptedBy = responderID
	a.Version++
	a.UpdatedAt = s.now()
	updated := *a
	s.hookMu.Lock()
	s.mu.Unlock()

	logger.Info("alert accepted",
		zap.String("alert_id", alertID),
		zap.String("responder_id", responderID),
		zap.Int64("version", updated.Version))

	s.afterChange(ctx, updated)
	s.hookMu.Unlock()
	return updated, nil
}

// Resolve 从任意非终态迁移到 resolved
func (s *Store) Resolve(ctx context.Context, alertID string) (models.Alert, error) {
	return s.terminate(ctx, alertID, models.AlertStatusResolved)
}

// Cancel 从任意非终态迁移到 cancelled（responding 也允许取消）
func (s *Store) Cancel(ctx context.Context, alertID string) (models.Alert, error) {
	return s.terminate(ctx, alertID, models.AlertStatusCancelled)
}

func (s *Store) terminate(ctx context.Context, alertID string, to models.AlertStatus) (models.Alert, error) {
	s.mu.Lock()
	a, ok := s.alerts[alertID]
	if !ok {
		s.mu.Unlock()
		return models.Alert{}, errors.NotFound("alert %s not found", alertID)
	}
	if a.Status.Terminal() {
		s.mu.Unlock()
		return models.Alert{}, errors.InvalidTransition("alert %s is already %s", alertID, a.Status)
	}

	a.Status = to
	a.Version++
	a.UpdatedAt = s.now()
	updated := *a
	s.hookMu.Lock()
	s.mu.Unlock()

	logger.Info("alert closed",
		zap.String("alert_id", alertID),
		zap.String("status", string(to)))

	s.afterChange(ctx, updated)
	s.hookMu.Unlock()
	return updated, nil
}

// Restore 启动时从数据库镜像回放，不触发校验和回调。
// 已存在的 id 跳过，返回实际装入条数。
func (s *Store) Restore(saved []models.Alert) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, a := range saved {
		if a.ID == "" || a.Status.Terminal() {
			continue
		}
		if _, exists := s.alerts[a.ID]; exists {
			continue
		}
		stored := a
		s.alerts[a.ID] = &stored
		restored++
	}
	return restored
}

// Get 读取单条警报
func (s *Store) Get(alertID string) (models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return models.Alert{}, errors.NotFound("alert %s not found", alertID)
	}
	return *a, nil
}

// ListFilter 列表过滤条件；零值返回全部
type ListFilter struct {
	Status models.AlertStatus
	UserID string
}

// List 只读列表
func (s *Store) List(filter ListFilter) []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		out = append(out, *a)
	}
	return out
}

func (s *Store) afterChange(ctx context.Context, alert models.Alert) {
	if s.persister != nil {
		if err := s.persister.SaveAlert(ctx, alert); err != nil {
			logger.Warn("alert persist failed",
				zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}
	for _, hook := range s.hooks {
		hook(ctx, alert)
	}
}
