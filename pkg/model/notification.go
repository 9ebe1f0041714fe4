// pkg/model/notification.go
package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
)

// NotificationType 站内通知类型
type NotificationType string

const (
	NotificationTypeSOS  NotificationType = "sos"
	NotificationTypeInfo NotificationType = "info"
)

// Notification 站内通知
type Notification struct {
	ID         string           `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string           `gorm:"type:uuid;not null;index" json:"user_id"`
	SOSAlertID *string          `gorm:"type:uuid;index" json:"sos_alert_id"`
	Title      string           `gorm:"not null" json:"title"`
	Message    string           `gorm:"type:text" json:"message"`
	Type       NotificationType `gorm:"type:varchar(20);not null;default:'info'" json:"type"`
	IsRead     bool             `gorm:"not null;default:false;index" json:"is_read"`
	CreatedAt  time.Time        `gorm:"index" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}
