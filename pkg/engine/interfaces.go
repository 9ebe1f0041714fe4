package engine

import (
	"context"
	"time"

	"SOSRadar/pkg/database"
	"SOSRadar/pkg/messaging"
	"SOSRadar/pkg/model"
)

// AlertStore 告警存储
type AlertStore interface {
	FindActive(ctx context.Context, userID string) (*model.SOSAlert, error)
	CreateActive(ctx context.Context, alert *model.SOSAlert) error
	Transition(ctx context.Context, alertID string, to model.AlertStatus, at time.Time, resolvedBy *string) (*model.SOSAlert, error)
}

// ContactStore 目录紧急联系人
type ContactStore interface {
	ListActive(ctx context.Context) ([]*model.EmergencyContact, error)
}

// UserStore 用户目录
type UserStore interface {
	GetByID(ctx context.Context, userID string) (*model.User, error)
	ListAdmins(ctx context.Context) ([]*model.User, error)
}

// RecipientStore 投递意向
type RecipientStore interface {
	Ensure(ctx context.Context, alertID string, contactIDs []string) ([]*model.DeliveryIntent, error)
	MarkDelivered(ctx context.Context, intentID string, at time.Time) (bool, error)
	RecordFailure(ctx context.Context, intentID string, cause string, claimedUntil *time.Time) error
	Claim(ctx context.Context, intentIDs []string, now, until time.Time) ([]string, error)
	ListPending(ctx context.Context, filter database.PendingFilter) ([]*model.DeliveryIntent, error)
}

// NotificationStore 站内通知
type NotificationStore interface {
	Create(ctx context.Context, notifications ...*model.Notification) error
}

// EventPublisher 告警事件发布
type EventPublisher interface {
	PublishAlertEvent(ctx context.Context, event messaging.AlertEvent) error
}

// FanOut 告警激活后的扇出投递，失败只体现在报告里
type FanOut interface {
	Dispatch(ctx context.Context, alert *model.SOSAlert) DispatchReport
}
