// pkg/database/personal_contact.go
package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"SOSRadar/pkg/model"
)

// PersonalContactDB 用户个人紧急联系人
type PersonalContactDB struct {
	db *gorm.DB
}

func (s *Store) PersonalContact() *PersonalContactDB {
	return &PersonalContactDB{db: s.db}
}

// ListByUser primary 在前，其余按创建时间倒序
func (p *PersonalContactDB) ListByUser(ctx context.Context, userID string) ([]*model.UserEmergencyContact, error) {
	var contacts []*model.UserEmergencyContact
	err := p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_primary DESC").
		Order("created_at DESC").
		Find(&contacts).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询个人紧急联系人失败")
	}
	return contacts, nil
}

// Create 设置为 primary 时，同一事务内先取消该用户其他联系人的 primary
func (p *PersonalContactDB) Create(ctx context.Context, contact *model.UserEmergencyContact) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if contact.IsPrimary {
			if err := unsetPrimary(tx, contact.UserID, ""); err != nil {
				return err
			}
		}
		if err := tx.Create(contact).Error; err != nil {
			return errors.Wrap(err, "创建个人紧急联系人失败")
		}
		return nil
	})
}

// Update 只能更新本人的联系人
func (p *PersonalContactDB) Update(ctx context.Context, userID, contactID string, updates map[string]interface{}) (*model.UserEmergencyContact, error) {
	var contact model.UserEmergencyContact
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&contact, "id = ? AND user_id = ?", contactID, userID).Error; err != nil {
			return notFound(err)
		}
		if primary, ok := updates["is_primary"].(bool); ok && primary {
			if err := unsetPrimary(tx, userID, contactID); err != nil {
				return err
			}
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = time.Now().UTC()
		if err := tx.Model(&model.UserEmergencyContact{}).
			Where("id = ? AND user_id = ?", contactID, userID).
			Updates(updates).Error; err != nil {
			return errors.Wrap(err, "更新个人紧急联系人失败")
		}
		return tx.First(&contact, "id = ?", contactID).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "更新个人紧急联系人失败")
	}
	return &contact, nil
}

func (p *PersonalContactDB) Delete(ctx context.Context, userID, contactID string) error {
	result := p.db.WithContext(ctx).
		Delete(&model.UserEmergencyContact{}, "id = ? AND user_id = ?", contactID, userID)
	if result.Error != nil {
		return errors.Wrap(result.Error, "删除个人紧急联系人失败")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func unsetPrimary(tx *gorm.DB, userID, exceptID string) error {
	query := tx.Model(&model.UserEmergencyContact{}).
		Where("user_id = ? AND is_primary = ?", userID, true)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Update("is_primary", false).Error; err != nil {
		return errors.Wrap(err, "取消原primary联系人失败")
	}
	return nil
}
