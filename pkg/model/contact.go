// pkg/model/contact.go
package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
)

// EmergencyContact 目录级紧急联系人（安保、医疗、管理层等），每次SOS都会通知
type EmergencyContact struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	Email     *string   `gorm:"type:varchar(255)" json:"email"`
	Phone     *string   `gorm:"type:varchar(30)" json:"phone"`
	Role      string    `gorm:"type:varchar(50);not null" json:"role"`
	IsActive  bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *EmergencyContact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// HasEmail 是否可以邮件通知
func (c *EmergencyContact) HasEmail() bool {
	return c.Email != nil && *c.Email != ""
}

// UserEmergencyContact 用户个人紧急联系人，每个用户最多一个 primary
type UserEmergencyContact struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name"`
	Email        *string   `gorm:"type:varchar(255)" json:"email"`
	Phone        *string   `gorm:"type:varchar(30)" json:"phone"`
	Relationship *string   `gorm:"type:varchar(50)" json:"relationship"`
	IsPrimary    bool      `gorm:"not null;default:false" json:"is_primary"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c *UserEmergencyContact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}
