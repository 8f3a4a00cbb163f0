package storage

import (
	"context"
	"time"

	"SafeSignal/internal/models"
	"SafeSignal/pkg/errors"
	"SafeSignal/pkg/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 把内存权威状态镜像到数据库，供重启后回放与离线查询。
// 实现 alerts.Persister 和 dispatch.SubscriptionPersister。
type Store struct {
	db *gorm.DB
}

// Open 按驱动打开数据库并迁移表结构
func Open(driver, dsn string) (*Store, error) {
	db, err := util.OpenDB(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.AutoMigrate(
		&models.Alert{},
		&models.ResponderPresence{},
		&models.NotificationSubscription{},
	); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}
	return &Store{db: db}, nil
}

// NewStore 测试或外部已建好连接时使用
func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// SaveAlert upsert 一条警报镜像
func (s *Store) SaveAlert(ctx context.Context, alert models.Alert) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&alert).Error
}

// SaveSubscription upsert 一条推送订阅
func (s *Store) SaveSubscription(sub models.NotificationSubscription) error {
	return s.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(&sub).Error
}

// SavePresence upsert 一条响应者位置镜像
func (s *Store) SavePresence(p models.ResponderPresence) error {
	return s.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&p).Error
}

// LoadOpenAlerts 启动时回放未终结的警报
func (s *Store) LoadOpenAlerts(ctx context.Context) ([]models.Alert, error) {
	var out []models.Alert
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.AlertStatus{
			models.AlertStatusActive,
			models.AlertStatusResponding,
		}).
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "load open alerts")
	}
	return out, nil
}

// LoadSubscriptions 启动时回放全部推送订阅
func (s *Store) LoadSubscriptions(ctx context.Context) ([]models.NotificationSubscription, error) {
	var out []models.NotificationSubscription
	if err := s.db.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "load subscriptions")
	}
	return out, nil
}

// PurgeClosedBefore 删除早于 cutoff 的终态警报，返回删除条数
func (s *Store) PurgeClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []models.AlertStatus{
			models.AlertStatusResolved,
			models.AlertStatusCancelled,
		}, cutoff).
		Delete(&models.Alert{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "purge closed alerts")
	}
	return res.RowsAffected, nil
}

// ListAlertHistory 离线历史查询，按更新时间倒序
func (s *Store) ListAlertHistory(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("updated_at DESC").Limit(limit)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var out []models.Alert
	if err := q.Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "list alert history")
	}
	return out, nil
}
