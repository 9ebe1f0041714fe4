// pkg/database/recipient.go
package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"SOSRadar/pkg/model"
)

// RecipientDB 投递意向
type RecipientDB struct {
	db *gorm.DB
}

func (s *Store) Recipient() *RecipientDB {
	return &RecipientDB{db: s.db}
}

// PendingFilter 补投扫描条件
type PendingFilter struct {
	Since       time.Time // 只扫描该时间之后创建的意向
	MaxAttempts int
	Limit       int
	Now         time.Time // 非零时排除租约尚未到期的意向
}

// Ensure 为告警和联系人集合落库投递意向，已存在的保持不变，返回全部对应意向
func (r *RecipientDB) Ensure(ctx context.Context, alertID string, contactIDs []string) ([]*model.DeliveryIntent, error) {
	if len(contactIDs) == 0 {
		return nil, nil
	}

	intents := make([]*model.DeliveryIntent, 0, len(contactIDs))
	for _, contactID := range contactIDs {
		intents = append(intents, &model.DeliveryIntent{
			SOSAlertID:         alertID,
			EmergencyContactID: contactID,
		})
	}

	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sos_alert_id"}, {Name: "emergency_contact_id"}},
		DoNothing: true,
	}).Create(&intents).Error
	if err != nil {
		return nil, errors.Wrap(err, "保存投递意向失败")
	}

	// 冲突行的ID不会回填，重新读取
	var stored []*model.DeliveryIntent
	err = db.Where("sos_alert_id = ? AND emergency_contact_id IN ?", alertID, contactIDs).
		Order("created_at ASC").
		Find(&stored).Error
	if err != nil {
		return nil, errors.Wrap(err, "读取投递意向失败")
	}
	return stored, nil
}

// MarkDelivered 仅当尚未投递时标记成功，返回是否本次完成标记
func (r *RecipientDB) MarkDelivered(ctx context.Context, intentID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.DeliveryIntent{}).
		Where("id = ? AND notification_sent = ?", intentID, false).
		Updates(map[string]interface{}{
			"notification_sent": true,
			"notified_at":       at,
			"attempts":          gorm.Expr("attempts + 1"),
			"last_error":        "",
			"claimed_until":     nil,
			"updated_at":        at,
		})
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "标记投递成功失败")
	}
	return result.RowsAffected > 0, nil
}

// RecordFailure 记录一次失败的投递尝试；claimedUntil 为 nil 时释放租约
func (r *RecipientDB) RecordFailure(ctx context.Context, intentID string, cause string, claimedUntil *time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.DeliveryIntent{}).
		Where("id = ? AND notification_sent = ?", intentID, false).
		Updates(map[string]interface{}{
			"attempts":      gorm.Expr("attempts + 1"),
			"last_error":    cause,
			"claimed_until": claimedUntil,
			"updated_at":    time.Now().UTC(),
		}).Error
	if err != nil {
		return errors.Wrap(err, "记录投递失败失败")
	}
	return nil
}

// Claim 为未投递且无有效租约的意向加租约，返回本次抢到的意向ID
// 每行一条条件 UPDATE，多个实例并发时同一意向只有一个能成功
func (r *RecipientDB) Claim(ctx context.Context, intentIDs []string, now, until time.Time) ([]string, error) {
	won := make([]string, 0, len(intentIDs))
	for _, id := range intentIDs {
		result := r.db.WithContext(ctx).Model(&model.DeliveryIntent{}).
			Where("id = ? AND notification_sent = ?", id, false).
			Where("(claimed_until IS NULL OR claimed_until < ?)", now).
			Updates(map[string]interface{}{
				"claimed_until": until,
				"updated_at":    now,
			})
		if result.Error != nil {
			return won, errors.Wrap(result.Error, "占用投递意向失败")
		}
		if result.RowsAffected == 1 {
			won = append(won, id)
		}
	}
	return won, nil
}

// ListPending 未投递且告警仍为 active 的意向，带联系人和告警
func (r *RecipientDB) ListPending(ctx context.Context, filter PendingFilter) ([]*model.DeliveryIntent, error) {
	query := r.db.WithContext(ctx).
		Joins("JOIN sos_alerts ON sos_alerts.id = sos_alert_recipients.sos_alert_id").
		Where("sos_alerts.status = ?", model.AlertStatusActive).
		Where("sos_alert_recipients.notification_sent = ?", false).
		Where("sos_alert_recipients.created_at >= ?", filter.Since)
	if filter.MaxAttempts > 0 {
		query = query.Where("sos_alert_recipients.attempts < ?", filter.MaxAttempts)
	}
	if !filter.Now.IsZero() {
		query = query.Where("(sos_alert_recipients.claimed_until IS NULL OR sos_alert_recipients.claimed_until < ?)", filter.Now)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var intents []*model.DeliveryIntent
	err := query.
		Preload("Contact").
		Preload("Alert").
		Preload("Alert.User").
		Order("sos_alert_recipients.created_at ASC").
		Find(&intents).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询待补投意向失败")
	}
	return intents, nil
}

func (r *RecipientDB) ListByAlert(ctx context.Context, alertID string) ([]*model.DeliveryIntent, error) {
	var intents []*model.DeliveryIntent
	err := r.db.WithContext(ctx).
		Preload("Contact").
		Where("sos_alert_id = ?", alertID).
		Order("created_at ASC").
		Find(&intents).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询投递记录失败")
	}
	return intents, nil
}

// CountPending 未投递意向数量，用于监控
func (r *RecipientDB) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.DeliveryIntent{}).
		Where("notification_sent = ?", false).
		Count(&count).Error
	return count, err
}
