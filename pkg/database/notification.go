// pkg/database/notification.go
package database

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"SOSRadar/pkg/model"
)

type NotificationDB struct {
	db *gorm.DB
}

func (s *Store) Notification() *NotificationDB {
	return &NotificationDB{db: s.db}
}

// Create 批量写入站内通知
func (n *NotificationDB) Create(ctx context.Context, notifications ...*model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	if err := n.db.WithContext(ctx).Create(&notifications).Error; err != nil {
		return errors.Wrap(err, "保存站内通知失败")
	}
	return nil
}

// ListByUser 用户的站内通知，最新的在前
func (n *NotificationDB) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*model.Notification, error) {
	query := n.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var notifications []*model.Notification
	if err := query.Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, errors.Wrap(err, "查询站内通知失败")
	}
	return notifications, nil
}

// MarkRead 只能标记本人的通知
func (n *NotificationDB) MarkRead(ctx context.Context, userID, notificationID string) error {
	result := n.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if result.Error != nil {
		return errors.Wrap(result.Error, "标记通知已读失败")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
