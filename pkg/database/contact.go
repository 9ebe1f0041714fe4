// pkg/database/contact.go
package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"SOSRadar/pkg/model"
)

// ContactDB 目录级紧急联系人
type ContactDB struct {
	db *gorm.DB
}

func (s *Store) Contact() *ContactDB {
	return &ContactDB{db: s.db}
}

// ListActive 所有启用的联系人，SOS扇出的收件人集合
func (c *ContactDB) ListActive(ctx context.Context) ([]*model.EmergencyContact, error) {
	var contacts []*model.EmergencyContact
	err := c.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&contacts).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询启用的紧急联系人失败")
	}
	return contacts, nil
}

func (c *ContactDB) List(ctx context.Context) ([]*model.EmergencyContact, error) {
	var contacts []*model.EmergencyContact
	err := c.db.WithContext(ctx).Order("created_at DESC").Find(&contacts).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询紧急联系人失败")
	}
	return contacts, nil
}

func (c *ContactDB) Create(ctx context.Context, contact *model.EmergencyContact) error {
	if err := c.db.WithContext(ctx).Create(contact).Error; err != nil {
		return errors.Wrap(err, "创建紧急联系人失败")
	}
	return nil
}

func (c *ContactDB) GetByID(ctx context.Context, contactID string) (*model.EmergencyContact, error) {
	var contact model.EmergencyContact
	if err := c.db.WithContext(ctx).First(&contact, "id = ?", contactID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "获取紧急联系人失败")
	}
	return &contact, nil
}

func (c *ContactDB) Update(ctx context.Context, contactID string, updates map[string]interface{}) (*model.EmergencyContact, error) {
	if len(updates) == 0 {
		return c.GetByID(ctx, contactID)
	}
	updates["updated_at"] = time.Now().UTC()

	result := c.db.WithContext(ctx).Model(&model.EmergencyContact{}).
		Where("id = ?", contactID).
		Updates(updates)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "更新紧急联系人失败")
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return c.GetByID(ctx, contactID)
}

// Delete 删除联系人，历史投递记录保留
func (c *ContactDB) Delete(ctx context.Context, contactID string) error {
	result := c.db.WithContext(ctx).Delete(&model.EmergencyContact{}, "id = ?", contactID)
	if result.Error != nil {
		return errors.Wrap(result.Error, "删除紧急联系人失败")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *ContactDB) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&model.EmergencyContact{}).
		Where("is_active = ?", true).
		Count(&count).Error
	return count, err
}
