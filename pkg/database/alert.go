// pkg/database/alert.go
package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"SOSRadar/pkg/model"
)

type AlertDB struct {
	db *gorm.DB
}

func (s *Store) Alert() *AlertDB {
	return &AlertDB{db: s.db}
}

// AlertFilter 管理端告警列表过滤条件
type AlertFilter struct {
	Status model.AlertStatus
	Limit  int
	Offset int
}

// FindActive 查询用户进行中的告警，没有时返回 nil, nil
func (a *AlertDB) FindActive(ctx context.Context, userID string) (*model.SOSAlert, error) {
	var alerts []model.SOSAlert
	err := a.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.AlertStatusActive).
		Limit(1).
		Find(&alerts).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询进行中告警失败")
	}
	if len(alerts) == 0 {
		return nil, nil
	}
	return &alerts[0], nil
}

// CreateActive 在事务中复查后插入 active 告警，唯一索引兜底并发插入
func (a *AlertDB) CreateActive(ctx context.Context, alert *model.SOSAlert) error {
	alert.Status = model.AlertStatusActive
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.SOSAlert{}).
			Where("user_id = ? AND status = ?", alert.UserID, model.AlertStatusActive).
			Count(&count).Error; err != nil {
			return errors.Wrap(err, "复查进行中告警失败")
		}
		if count > 0 {
			return ErrActiveAlertExists
		}
		if err := tx.Create(alert).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrActiveAlertExists
			}
			return errors.Wrap(err, "保存SOS告警失败")
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrActiveAlertExists) && isUniqueViolation(err) {
		// 提交阶段才检测到冲突
		return ErrActiveAlertExists
	}
	return err
}

// Transition 仅当告警仍为 active 时更新到终态，否则返回 ErrNotFound 且不写入
func (a *AlertDB) Transition(ctx context.Context, alertID string, to model.AlertStatus, at time.Time, resolvedBy *string) (*model.SOSAlert, error) {
	if !model.AlertStatusActive.CanTransitionTo(to) {
		return nil, errors.Errorf("非法的告警状态流转: active -> %s", to)
	}

	var alert model.SOSAlert
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":      to,
			"resolved_at": at,
			"updated_at":  at,
		}
		if resolvedBy != nil {
			updates["resolved_by"] = *resolvedBy
		}
		result := tx.Model(&model.SOSAlert{}).
			Where("id = ? AND status = ?", alertID, model.AlertStatusActive).
			Updates(updates)
		if result.Error != nil {
			return errors.Wrap(result.Error, "更新告警状态失败")
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.First(&alert, "id = ?", alertID).Error; err != nil {
			return errors.Wrap(err, "读取更新后告警失败")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (a *AlertDB) GetByID(ctx context.Context, alertID string) (*model.SOSAlert, error) {
	var alert model.SOSAlert
	err := a.db.WithContext(ctx).First(&alert, "id = ?", alertID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "获取SOS告警失败")
	}
	return &alert, nil
}

// GetDetail 告警详情，带用户和投递记录
func (a *AlertDB) GetDetail(ctx context.Context, alertID string) (*model.SOSAlert, error) {
	var alert model.SOSAlert
	err := a.db.WithContext(ctx).
		Preload("User").
		Preload("Recipients", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Recipients.Contact").
		First(&alert, "id = ?", alertID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "获取SOS告警详情失败")
	}
	return &alert, nil
}

// List 管理端告警列表，按创建时间倒序
func (a *AlertDB) List(ctx context.Context, filter AlertFilter) ([]*model.SOSAlert, error) {
	var alerts []*model.SOSAlert
	query := a.db.WithContext(ctx).Preload("User")

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	err := query.Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&alerts).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询SOS告警列表失败")
	}
	return alerts, nil
}

// ListByUser 用户历史告警，按创建时间正序
func (a *AlertDB) ListByUser(ctx context.Context, userID string) ([]*model.SOSAlert, error) {
	var alerts []*model.SOSAlert
	err := a.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&alerts).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询用户告警失败")
	}
	return alerts, nil
}

func (a *AlertDB) CountByStatus(ctx context.Context, status model.AlertStatus) (int64, error) {
	var count int64
	query := a.db.WithContext(ctx).Model(&model.SOSAlert{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Count(&count).Error
	return count, err
}

func (a *AlertDB) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&model.SOSAlert{}).
		Where("created_at >= ?", since).
		Count(&count).Error
	return count, err
}
