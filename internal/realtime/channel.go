package realtime

import (
	"sync"
	"time"

	"SafeSignal/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AlertSource 快照需要的只读警报访问，由 alerts.Store 实现
type AlertSource interface {
	Get(alertID string) (models.Alert, error)
}

// Observer 订阅/丢弃指标，pkg/metrics.Metrics 满足该接口
type Observer interface {
	SubscriberJoined(kind string)
	SubscriberLeft(kind string)
	EventDropped(kind string)
}

// Hub 按警报划分的发布订阅主题。
//
// 保证：同一订阅者在同一主题上按发布顺序收到事件；跨主题无顺序保证。
// 不保留历史：慢消费者直接丢事件并被标记 lagged，由会话自行拉快照重新同步。
type Hub struct {
	mu       sync.RWMutex
	topics   map[string]*topic
	alerts   AlertSource
	observer Observer
	bufSize  int
}

type topic struct {
	mu         sync.Mutex
	alertID    string
	seq        int64
	subs       map[string]*Subscription
	responders map[string]models.SessionStatus
	closed     bool
}

// Subscription 单个订阅者的事件流
type Subscription struct {
	ID      string
	AlertID string

	mu     sync.Mutex
	ch     chan Event
	lagged bool
	closed bool
	hub    *Hub
}

type HubOption func(*Hub)

func WithObserver(o Observer) HubOption {
	return func(h *Hub) { h.observer = o }
}

func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufSize = n
		}
	}
}

func NewHub(alerts AlertSource, opts ...HubOption) *Hub {
	h := &Hub{
		topics:  make(map[string]*topic),
		alerts:  alerts,
		bufSize: 64,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) topicFor(alertID string, create bool) *topic {
	h.mu.RLock()
	t, ok := h.topics[alertID]
	h.mu.RUnlock()
	if ok || !create {
		return t
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok = h.topics[alertID]; ok {
		return t
	}
	t = &topic{
		alertID:    alertID,
		subs:       make(map[string]*Subscription),
		responders: make(map[string]models.SessionStatus),
	}
	h.topics[alertID] = t
	return t
}

// Subscribe 为一个警报主题建立订阅
func (h *Hub) Subscribe(alertID string) *Subscription {
	t := h.topicFor(alertID, true)

	sub := &Subscription{
		ID:      uuid.New().String(),
		AlertID: alertID,
		ch:      make(chan Event, h.bufSize),
		hub:     h,
	}

	t.mu.Lock()
	t.subs[sub.ID] = sub
	t.mu.Unlock()

	if h.observer != nil {
		h.observer.SubscriberJoined("alert")
	}
	return sub
}

// Events 订阅者消费通道；订阅关闭后通道关闭
func (s *Subscription) Events() <-chan Event { return s.ch }

// Lagged 缓冲满被丢过事件；消费者必须重新拉快照
func (s *Subscription) Lagged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lagged
}

// ClearLagged 快照重同步完成后复位
func (s *Subscription) ClearLagged() {
	s.mu.Lock()
	s.lagged = false
	s.mu.Unlock()
}

// Close 解除订阅并关闭事件通道，可重复调用
func (s *Subscription) Close() {
	t := s.hub.topicFor(s.AlertID, false)
	if t != nil {
		t.mu.Lock()
		delete(t.subs, s.ID)
		t.mu.Unlock()
	}

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
		if s.hub.observer != nil {
			s.hub.observer.SubscriberLeft("alert")
		}
	}
	s.mu.Unlock()
}

// PublishAlertUpdated 警报状态变化广播
func (h *Hub) PublishAlertUpdated(alert models.Alert) {
	t := h.topicFor(alert.ID, true)
	t.publish(h, Event{
		Type:         EventAlertUpdated,
		AlertID:      alert.ID,
		AlertUpdated: &AlertUpdatedPayload{Status: alert.Status, Version: alert.Version},
	})
}

// Join 响应者进入警报直播视图
func (h *Hub) Join(alertID, responderID string) {
	t := h.topicFor(alertID, true)

	t.mu.Lock()
	t.responders[responderID] = models.SessionAvailable
	count := len(t.responders)
	t.mu.Unlock()

	t.publish(h, Event{
		Type:      EventResponderJoined,
		AlertID:   alertID,
		Responder: &ResponderPayload{ResponderID: responderID, Count: count},
	})
}

// Leave 响应者离开；会话销毁时必须调用以维持计数
func (h *Hub) Leave(alertID, responderID string) {
	t := h.topicFor(alertID, false)
	if t == nil {
		return
	}

	t.mu.Lock()
	delete(t.responders, responderID)
	count := len(t.responders)
	t.mu.Unlock()

	t.publish(h, Event{
		Type:      EventResponderLeft,
		AlertID:   alertID,
		Responder: &ResponderPayload{ResponderID: responderID, Count: count},
	})
}

// SetResponderStatus 响应者会话状态变化广播
func (h *Hub) SetResponderStatus(alertID, responderID string, status models.SessionStatus) {
	t := h.topicFor(alertID, false)
	if t == nil {
		return
	}

	t.mu.Lock()
	if _, ok := t.responders[responderID]; ok {
		t.responders[responderID] = status
	}
	count := len(t.responders)
	t.mu.Unlock()

	t.publish(h, Event{
		Type:      EventResponderStatus,
		AlertID:   alertID,
		Responder: &ResponderPayload{ResponderID: responderID, Status: status, Count: count},
	})
}

// ResponderCount 主题内当前响应者数
func (h *Hub) ResponderCount(alertID string) int {
	t := h.topicFor(alertID, false)
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.responders)
}

// Snapshot 当前状态快照；重连的订阅者先拉快照再消费增量
func (h *Hub) Snapshot(alertID string) (Snapshot, error) {
	alert, err := h.alerts.Get(alertID)
	if err != nil {
		return Snapshot{}, err
	}

	t := h.topicFor(alertID, false)
	snap := Snapshot{Alert: alert}
	if t != nil {
		t.mu.Lock()
		snap.ResponderCount = len(t.responders)
		snap.Seq = t.seq
		t.mu.Unlock()
	}
	return snap, nil
}

// CloseTopic 警报进入终态后关闭主题，所有订阅随之关闭
func (h *Hub) CloseTopic(alertID string) {
	h.mu.Lock()
	t, ok := h.topics[alertID]
	if ok {
		delete(h.topics, alertID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	t.closed = true
	subs := make([]*Subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	t.subs = make(map[string]*Subscription)
	t.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
			if h.observer != nil {
				h.observer.SubscriberLeft("alert")
			}
		}
		sub.mu.Unlock()
	}
	logrus.Debugf("realtime topic closed: %s", alertID)
}

// publish 对主题内每个订阅者做非阻塞投递；缓冲满则丢弃并标记 lagged
func (t *topic) publish(h *Hub, ev Event) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.seq++
	ev.Seq = t.seq
	ev.Timestamp = time.Now()
	subs := make([]*Subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if sub.closed {
			sub.mu.Unlock()
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.lagged = true
			if h.observer != nil {
				h.observer.EventDropped("alert")
			}
			logrus.Warnf("订阅者 %s 缓冲区已满，事件被丢弃", sub.ID)
		}
		sub.mu.Unlock()
	}
}
