package dispatch

import (
	"encoding/json"
	"sync"

	"SafeSignal/internal/models"
	"SafeSignal/pkg/errors"

	"gorm.io/datatypes"
)

// SubscriptionPersister 可选的落库协作方
type SubscriptionPersister interface {
	SaveSubscription(sub models.NotificationSubscription) error
}

// SubscriptionStore 每个用户至多一条推送订阅，后写覆盖。
// SubscriptionData 保持不透明，只在投递时取出 endpoint。
type SubscriptionStore struct {
	mu        sync.RWMutex
	subs      map[string]models.NotificationSubscription
	persister SubscriptionPersister
}

type SubscriptionOption func(*SubscriptionStore)

func WithSubscriptionPersister(p SubscriptionPersister) SubscriptionOption {
	return func(s *SubscriptionStore) { s.persister = p }
}

func NewSubscriptionStore(opts ...SubscriptionOption) *SubscriptionStore {
	s := &SubscriptionStore{subs: make(map[string]models.NotificationSubscription)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert 写入或覆盖一个用户的订阅
func (s *SubscriptionStore) Upsert(sub models.NotificationSubscription) error {
	if sub.UserID == "" {
		return errors.Validation("subscription requires user_id")
	}
	if len(sub.SubscriptionData) == 0 {
		return errors.Validation("subscription requires subscription_data")
	}

	s.mu.Lock()
	s.subs[sub.UserID] = sub
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.SaveSubscription(sub); err != nil {
			return errors.Wrap(err, "persist subscription")
		}
	}
	return nil
}

// Get 返回用户订阅
func (s *SubscriptionStore) Get(userID string) (models.NotificationSubscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[userID]
	return sub, ok
}

// Remove 删除用户订阅
func (s *SubscriptionStore) Remove(userID string) {
	s.mu.Lock()
	delete(s.subs, userID)
	s.mu.Unlock()
}

// Count 当前订阅数
func (s *SubscriptionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Endpoint 从不透明的订阅数据里取投递端点
func Endpoint(data datatypes.JSON) string {
	var parsed struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ""
	}
	return parsed.Endpoint
}

// Filters 解析订阅的过滤条件；损坏或缺失时返回零值（即不过滤）
func Filters(sub models.NotificationSubscription) models.SubscriptionFilters {
	var f models.SubscriptionFilters
	if len(sub.Filters) > 0 {
		_ = json.Unmarshal(sub.Filters, &f)
	}
	return f
}

// filtersAllow 按订阅过滤条件判断是否对该候选投递
func filtersAllow(f models.SubscriptionFilters, typ models.ResponderType, distanceKm float64) bool {
	if f.RadiusKm > 0 && distanceKm > f.RadiusKm {
		return false
	}
	if len(f.ResponderTypes) == 0 {
		return true
	}
	for _, t := range f.ResponderTypes {
		if t == typ {
			return true
		}
	}
	return false
}
