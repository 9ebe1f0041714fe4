package messaging

import (
	"context"
	"time"

	"SOSRadar/pkg/model"
)

// SubjectPrefix 告警事件主题前缀
const SubjectPrefix = "sos"

// EventType 告警事件类型
type EventType string

const (
	EventActivated EventType = "activated"
	EventCancelled EventType = "cancelled"
	EventResolved  EventType = "resolved"
)

// AlertEvent 告警生命周期事件
type AlertEvent struct {
	Type       EventType         `json:"type"`
	AlertID    string            `json:"alert_id"`
	UserID     string            `json:"user_id"`
	Status     model.AlertStatus `json:"status"`
	Latitude   *float64          `json:"latitude,omitempty"`
	Longitude  *float64          `json:"longitude,omitempty"`
	Address    *string           `json:"address,omitempty"`
	ResolvedBy *string           `json:"resolved_by,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewAlertEvent 由告警生成事件
func NewAlertEvent(eventType EventType, alert *model.SOSAlert, at time.Time) AlertEvent {
	return AlertEvent{
		Type:       eventType,
		AlertID:    alert.ID,
		UserID:     alert.UserID,
		Status:     alert.Status,
		Latitude:   alert.Latitude,
		Longitude:  alert.Longitude,
		Address:    alert.Address,
		ResolvedBy: alert.ResolvedBy,
		OccurredAt: at,
	}
}

// Subject 事件发布的主题，如 sos.activated
func (e AlertEvent) Subject() string {
	return SubjectPrefix + "." + string(e.Type)
}

// NopPublisher 未配置 NATS 时使用
type NopPublisher struct{}

func (NopPublisher) PublishAlertEvent(context.Context, AlertEvent) error {
	return nil
}
