// pkg/database/user.go
package database

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"SOSRadar/pkg/model"
)

type UserDB struct {
	db *gorm.DB
}

func (s *Store) User() *UserDB {
	return &UserDB{db: s.db}
}

func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	user.Email = strings.ToLower(user.Email)
	if user.Role == "" {
		user.Role = model.RoleEmployee
	}
	if err := u.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(ErrEmailTaken, "邮箱已存在: %s", user.Email)
		}
		return errors.Wrap(err, "创建用户失败")
	}
	return nil
}

func (u *UserDB) GetByID(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	err := u.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "获取用户信息失败")
	}
	return &user, nil
}

// ListAdmins 所有管理员
func (u *UserDB) ListAdmins(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	err := u.db.WithContext(ctx).
		Where("role = ?", model.RoleAdmin).
		Order("created_at ASC").
		Find(&users).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询管理员失败")
	}
	return users, nil
}

func (u *UserDB) List(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	err := u.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询用户列表失败")
	}
	return users, nil
}

// Update 按字段更新，返回更新后的用户
func (u *UserDB) Update(ctx context.Context, userID string, updates map[string]interface{}) (*model.User, error) {
	if len(updates) == 0 {
		return u.GetByID(ctx, userID)
	}
	if email, ok := updates["email"].(string); ok {
		updates["email"] = strings.ToLower(email)
	}
	updates["updated_at"] = time.Now().UTC()

	result := u.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(updates)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return nil, errors.Wrap(ErrEmailTaken, "更新用户信息失败")
		}
		return nil, errors.Wrap(result.Error, "更新用户信息失败")
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return u.GetByID(ctx, userID)
}

func (u *UserDB) Delete(ctx context.Context, userID string) error {
	result := u.db.WithContext(ctx).Delete(&model.User{}, "id = ?", userID)
	if result.Error != nil {
		return errors.Wrap(result.Error, "删除用户失败")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (u *UserDB) GetTotalCount(ctx context.Context) (int64, error) {
	var count int64
	err := u.db.WithContext(ctx).Model(&model.User{}).Count(&count).Error
	return count, err
}
