// pkg/model/user.go
package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
)

const (
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

// ValidRole 角色只能是 employee 或 admin
func ValidRole(role string) bool {
	return role == RoleEmployee || role == RoleAdmin
}

type User struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email         string    `gorm:"uniqueIndex;not null" json:"email"`
	EmployeeID    string    `gorm:"type:varchar(50);index" json:"employee_id"`
	Name          string    `json:"name"`
	Role          string    `gorm:"type:varchar(20);not null;default:'employee';index" json:"role"`
	EmailVerified bool      `gorm:"not null;default:false" json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// IsAdmin 是否管理员
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DisplayName 通知中使用的名字
func (u *User) DisplayName() string {
	if u == nil || u.Name == "" {
		return "Employee"
	}
	return u.Name
}
