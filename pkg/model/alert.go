// pkg/model/alert.go
package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
)

// AlertStatus SOS告警状态
type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusCancelled AlertStatus = "cancelled" // 用户本人取消
	AlertStatusResolved  AlertStatus = "resolved"  // 管理员处理完成
)

// IsValid 是否为已知状态
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertStatusActive, AlertStatusCancelled, AlertStatusResolved:
		return true
	}
	return false
}

// IsTerminal 终态不允许再流转
func (s AlertStatus) IsTerminal() bool {
	return s == AlertStatusCancelled || s == AlertStatusResolved
}

// CanTransitionTo 只有 active 可以流转到终态
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	return s == AlertStatusActive && next.IsTerminal()
}

// SOSAlert 一次SOS求助
type SOSAlert struct {
	ID         string      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string      `gorm:"type:uuid;not null;index" json:"user_id"`
	Status     AlertStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	Latitude   *float64    `gorm:"type:decimal(9,6)" json:"latitude"`
	Longitude  *float64    `gorm:"type:decimal(9,6)" json:"longitude"`
	Address    *string     `gorm:"type:text" json:"address"`
	StartedAt  time.Time   `gorm:"not null" json:"started_at"`
	ResolvedAt *time.Time  `json:"resolved_at"`
	ResolvedBy *string     `gorm:"type:uuid" json:"resolved_by,omitempty"` // 处理的管理员
	CreatedAt  time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`

	// 关联关系
	User       *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Recipients []DeliveryIntent `gorm:"foreignKey:SOSAlertID" json:"recipients,omitempty"`
}

func (a *SOSAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

func (SOSAlert) TableName() string {
	return "sos_alerts"
}

// HasLocation 是否带有坐标
func (a *SOSAlert) HasLocation() bool {
	return a.Latitude != nil && a.Longitude != nil
}
