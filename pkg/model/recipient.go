// pkg/model/recipient.go
package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
)

// DeliveryIntent 投递意向：某个告警应当通知某个联系人，在真正发送之前落库
type DeliveryIntent struct {
	ID                 string     `gorm:"type:uuid;primaryKey" json:"id"`
	SOSAlertID         string     `gorm:"type:uuid;not null;uniqueIndex:idx_recipient_alert_contact" json:"sos_alert_id"`
	EmergencyContactID string     `gorm:"type:uuid;not null;uniqueIndex:idx_recipient_alert_contact" json:"emergency_contact_id"`
	NotifiedAt         *time.Time `json:"notified_at"`
	NotificationSent   bool       `gorm:"not null;default:false;index" json:"notification_sent"`
	Attempts           int        `gorm:"not null;default:0" json:"attempts"`
	LastError          string     `gorm:"type:text" json:"last_error,omitempty"`
	ClaimedUntil       *time.Time `gorm:"index" json:"claimed_until,omitempty"` // 投递租约，到期前其他实例不会重复发送
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// 关联
	Contact *EmergencyContact `gorm:"foreignKey:EmergencyContactID" json:"contact,omitempty"`
	Alert   *SOSAlert         `gorm:"foreignKey:SOSAlertID" json:"-"`
}

func (d *DeliveryIntent) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

func (DeliveryIntent) TableName() string {
	return "sos_alert_recipients"
}
