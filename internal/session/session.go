package session

import (
	"context"
	"sync"

	"SafeSignal/internal/alerts"
	"SafeSignal/internal/models"
	"SafeSignal/internal/realtime"
	"SafeSignal/pkg/errors"
	"SafeSignal/pkg/logger"

	"go.uber.org/zap"
)

// Session 单个响应者对单个警报的响应过程。
//
// 状态只向前走：
//
//	available --accept--> en_route --arrive--> on_scene --finish--> complete
//
// accept 失败（竞争输了）回滚到 available，响应者可以去接别的警报。
// 连接断开只挂起不销毁，重连后拉快照对齐再继续。
type Session struct {
	mu          sync.Mutex
	responderID string
	alertID     string
	status      models.SessionStatus
	suspended   bool

	store *alerts.Store
	hub   *realtime.Hub
	sub   *realtime.Subscription
}

// Manager 维护活跃会话，一个响应者同时至多一个
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session // responderID -> session
	store    *alerts.Store
	hub      *realtime.Hub
}

func NewManager(store *alerts.Store, hub *realtime.Hub) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		hub:      hub,
	}
}

// Accept 尝试接手警报。竞争成功建立会话并进入 en_route；
// 竞争失败返回 ConflictError，不留下任何会话痕迹。
func (m *Manager) Accept(ctx context.Context, alertID, responderID string) (*Session, error) {
	if responderID == "" {
		return nil, errors.Validation("responder id is required")
	}

	m.mu.Lock()
	if existing, ok := m.sessions[responderID]; ok {
		m.mu.Unlock()
		return nil, errors.Conflict("responder %s already responding to alert %s",
			responderID, existing.alertID)
	}
	m.mu.Unlock()

	if _, err := m.store.Accept(ctx, alertID, responderID); err != nil {
		// 竞争失败或警报已终结：留在 available，不建会话
		if errors.IsConflict(err) {
			logger.Info("accept lost the race",
				zap.String("alert_id", alertID),
				zap.String("responder_id", responderID))
		}
		return nil, err
	}

	s := &Session{
		responderID: responderID,
		alertID:     alertID,
		status:      models.SessionEnRoute,
		store:       m.store,
		hub:         m.hub,
		sub:         m.hub.Subscribe(alertID),
	}

	m.mu.Lock()
	m.sessions[responderID] = s
	m.mu.Unlock()

	m.hub.Join(alertID, responderID)
	m.hub.SetResponderStatus(alertID, responderID, models.SessionEnRoute)
	return s, nil
}

// Get 取响应者的活跃会话
func (m *Manager) Get(responderID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[responderID]
	return s, ok
}

// release 会话结束后从管理器摘除
func (m *Manager) release(responderID string) {
	m.mu.Lock()
	delete(m.sessions, responderID)
	m.mu.Unlock()
}

// Count 活跃会话数
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (s *Session) ResponderID() string { return s.responderID }
func (s *Session) AlertID() string     { return s.alertID }

// Status 当前会话状态
func (s *Session) Status() models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Suspended 连接是否处于挂起
func (s *Session) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

// Events 会话订阅的实时事件流
func (s *Session) Events() <-chan realtime.Event { return s.sub.Events() }

// Arrive en_route -> on_scene
func (s *Session) Arrive(ctx context.Context) error {
	return s.advance(ctx, models.SessionEnRoute, models.SessionOnScene)
}

// Finish on_scene -> complete，同时解决警报并销毁会话
func (s *Session) Finish(ctx context.Context, m *Manager) error {
	if err := s.advance(ctx, models.SessionOnScene, models.SessionComplete); err != nil {
		return err
	}
	if _, err := s.store.Resolve(ctx, s.alertID); err != nil && !errors.IsInvalidTransition(err) {
		// 受害者可能已先行取消；终态下的 resolve 失败不算会话错误
		return err
	}
	s.teardown(m)
	return nil
}

// Abandon 中途退出：会话销毁，警报回不去 active，但保持 responding 由他人跟进
func (s *Session) Abandon(ctx context.Context, m *Manager) {
	s.teardown(m)
	logger.Info("session abandoned",
		zap.String("alert_id", s.alertID),
		zap.String("responder_id", s.responderID))
}

// advance 严格向前的单步迁移
func (s *Session) advance(ctx context.Context, from, to models.SessionStatus) error {
	s.mu.Lock()
	if s.status != from {
		cur := s.status
		s.mu.Unlock()
		return errors.InvalidTransition("session is %s, cannot move to %s", cur, to)
	}
	s.status = to
	s.mu.Unlock()

	s.hub.SetResponderStatus(s.alertID, s.responderID, to)
	return nil
}

// Suspend 传输断开时挂起；会话与警报侧状态都保持不变
func (s *Session) Suspend() {
	s.mu.Lock()
	s.suspended = true
	s.mu.Unlock()
	logger.Debug("session suspended",
		zap.String("alert_id", s.alertID),
		zap.String("responder_id", s.responderID))
}

// Resume 重连：先拉快照对齐当前警报状态，再恢复消费增量事件。
// 快照发现警报已终结时返回 ConnectivityError，调用方应销毁会话。
func (s *Session) Resume(ctx context.Context) (realtime.Snapshot, error) {
	snap, err := s.hub.Snapshot(s.alertID)
	if err != nil {
		return realtime.Snapshot{}, errors.Connectivity("resync failed: %s", errors.GetMessage(err))
	}
	if snap.Alert.Status.Terminal() {
		return snap, errors.Connectivity("alert %s closed while disconnected", s.alertID)
	}

	s.mu.Lock()
	s.suspended = false
	s.mu.Unlock()
	s.sub.ClearLagged()
	return snap, nil
}

// teardown 退订并从管理器摘除，可安全重复调用
func (s *Session) teardown(m *Manager) {
	s.hub.Leave(s.alertID, s.responderID)
	s.sub.Close()
	if m != nil {
		m.release(s.responderID)
	}
}
