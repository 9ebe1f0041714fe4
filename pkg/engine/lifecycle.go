// pkg/engine/lifecycle.go
package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"SOSRadar/pkg/apperr"
	"SOSRadar/pkg/database"
	"SOSRadar/pkg/geocoder"
	"SOSRadar/pkg/messaging"
	"SOSRadar/pkg/metrics"
	"SOSRadar/pkg/model"
)

const publishTimeout = 3 * time.Second

// Location 可选坐标，两个字段必须同时给出
type Location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Validate 校验坐标
func (l Location) Validate() error {
	if l.Latitude == nil && l.Longitude == nil {
		return nil
	}
	if l.Latitude == nil || l.Longitude == nil {
		return apperr.Validation("latitude and longitude must be provided together")
	}
	lat, lon := *l.Latitude, *l.Longitude
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return apperr.Validationf("latitude out of range: %v", lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return apperr.Validationf("longitude out of range: %v", lon)
	}
	return nil
}

func (l Location) present() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// ManagerDeps 生命周期管理依赖
type ManagerDeps struct {
	Alerts         AlertStore
	Notifications  NotificationStore
	Geocoder       geocoder.Geocoder
	Dispatcher     FanOut
	Publisher      EventPublisher
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	GeocodeTimeout time.Duration
}

// Manager SOS告警生命周期：发起、取消、处理
type Manager struct {
	alerts         AlertStore
	notifications  NotificationStore
	geocoder       geocoder.Geocoder
	dispatcher     FanOut
	publisher      EventPublisher
	metrics        *metrics.Metrics
	logger         *zap.Logger
	geocodeTimeout time.Duration
	now            func() time.Time

	// 进行中的扇出，关闭时等待
	inflight sync.WaitGroup
}

// NewManager 创建生命周期管理器
func NewManager(deps ManagerDeps) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Geocoder == nil {
		deps.Geocoder = geocoder.Nop{}
	}
	if deps.Publisher == nil {
		deps.Publisher = messaging.NopPublisher{}
	}
	return &Manager{
		alerts:         deps.Alerts,
		notifications:  deps.Notifications,
		geocoder:       deps.Geocoder,
		dispatcher:     deps.Dispatcher,
		publisher:      deps.Publisher,
		metrics:        deps.Metrics,
		logger:         deps.Logger.Named("lifecycle"),
		geocodeTimeout: deps.GeocodeTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Start 为用户发起SOS，同一用户同时最多一条 active
func (m *Manager) Start(ctx context.Context, userID string, loc Location) (*model.SOSAlert, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	existing, err := m.alerts.FindActive(ctx, userID)
	if err != nil {
		return nil, apperr.Dependency(err, "Failed to check active SOS")
	}
	if existing != nil {
		return nil, apperr.Conflict("SOS already active")
	}

	alert := &model.SOSAlert{
		UserID:    userID,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Address:   m.reverseGeocode(ctx, userID, loc),
		StartedAt: m.now(),
	}

	if err := m.alerts.CreateActive(ctx, alert); err != nil {
		if errors.Is(err, database.ErrActiveAlertExists) {
			return nil, apperr.Conflict("SOS already active")
		}
		return nil, apperr.Dependency(err, "Failed to create SOS alert")
	}
	m.metrics.RecordTransition("activated")
	m.logger.Info("SOS已发起",
		zap.String("alert_id", alert.ID),
		zap.String("user_id", userID),
		zap.Bool("has_location", alert.HasLocation()),
	)

	// 告警已落库，后续步骤与请求生命周期解绑
	detached := context.WithoutCancel(ctx)
	m.fanOut(detached, alert)

	m.notifyOwner(detached, alert, "SOS Activated",
		"Your SOS alert has been activated and emergency contacts have been notified.",
		model.NotificationTypeSOS)
	m.publish(detached, messaging.EventActivated, alert)

	return alert, nil
}

// Cancel 用户取消自己进行中的SOS
func (m *Manager) Cancel(ctx context.Context, userID string) (*model.SOSAlert, error) {
	active, err := m.alerts.FindActive(ctx, userID)
	if err != nil {
		return nil, apperr.Dependency(err, "Failed to check active SOS")
	}
	if active == nil {
		return nil, apperr.NotFound("No active SOS")
	}

	alert, err := m.alerts.Transition(ctx, active.ID, model.AlertStatusCancelled, m.now(), nil)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// 查询与更新之间已被处理
			return nil, apperr.NotFound("No active SOS")
		}
		return nil, apperr.Dependency(err, "Failed to cancel SOS")
	}
	m.metrics.RecordTransition("cancelled")
	m.logger.Info("SOS已取消", zap.String("alert_id", alert.ID), zap.String("user_id", userID))

	detached := context.WithoutCancel(ctx)
	m.notifyOwner(detached, alert, "SOS Cancelled", "Your SOS alert has been cancelled.", model.NotificationTypeInfo)
	m.publish(detached, messaging.EventCancelled, alert)

	return alert, nil
}

// Resolve 管理员处理告警，只接受 active 状态
func (m *Manager) Resolve(ctx context.Context, alertID, adminID string) (*model.SOSAlert, error) {
	var resolvedBy *string
	if adminID != "" {
		resolvedBy = &adminID
	}

	alert, err := m.alerts.Transition(ctx, alertID, model.AlertStatusResolved, m.now(), resolvedBy)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.NotFound("SOS alert not found")
		}
		return nil, apperr.Dependency(err, "Failed to resolve SOS alert")
	}
	m.metrics.RecordTransition("resolved")
	m.logger.Info("SOS已处理", zap.String("alert_id", alert.ID), zap.String("admin_id", adminID))

	detached := context.WithoutCancel(ctx)
	m.notifyOwner(detached, alert, "SOS Alert Resolved",
		"Your SOS alert has been resolved by an administrator.", model.NotificationTypeInfo)
	m.publish(detached, messaging.EventResolved, alert)

	return alert, nil
}

// GetActive 没有进行中的告警时返回 nil, nil
func (m *Manager) GetActive(ctx context.Context, userID string) (*model.SOSAlert, error) {
	alert, err := m.alerts.FindActive(ctx, userID)
	if err != nil {
		return nil, apperr.Dependency(err, "Failed to fetch active SOS")
	}
	return alert, nil
}

// Wait 等待已发起的扇出结束
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) fanOut(ctx context.Context, alert *model.SOSAlert) {
	if m.dispatcher == nil {
		return
	}
	snapshot := *alert
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		report := m.dispatcher.Dispatch(ctx, &snapshot)
		if len(report.Failed) > 0 || len(report.Errors) > 0 {
			m.logger.Warn("扇出部分失败", report.fields()...)
			return
		}
		m.logger.Info("扇出完成", report.fields()...)
	}()
}

func (m *Manager) reverseGeocode(ctx context.Context, userID string, loc Location) *string {
	if !loc.present() {
		return nil
	}

	address, err := callWithTimeout(ctx, m.geocodeTimeout, func(ctx context.Context) (string, error) {
		return m.geocoder.Reverse(ctx, *loc.Latitude, *loc.Longitude)
	})
	if err != nil {
		m.metrics.RecordGeocode("error")
		m.logger.Warn("地理编码失败，地址留空",
			zap.String("user_id", userID),
			zap.Float64("latitude", *loc.Latitude),
			zap.Float64("longitude", *loc.Longitude),
			zap.Error(err),
		)
		return nil
	}
	if address == "" {
		m.metrics.RecordGeocode("empty")
		return nil
	}
	m.metrics.RecordGeocode("ok")
	return &address
}

func (m *Manager) notifyOwner(ctx context.Context, alert *model.SOSAlert, title, message string, typ model.NotificationType) {
	alertID := alert.ID
	n := &model.Notification{
		UserID:     alert.UserID,
		SOSAlertID: &alertID,
		Title:      title,
		Message:    message,
		Type:       typ,
	}
	if err := m.notifications.Create(ctx, n); err != nil {
		m.logger.Error("写入用户通知失败",
			zap.String("alert_id", alert.ID),
			zap.String("user_id", alert.UserID),
			zap.Error(err),
		)
	}
}

func (m *Manager) publish(ctx context.Context, eventType messaging.EventType, alert *model.SOSAlert) {
	event := messaging.NewAlertEvent(eventType, alert, m.now())
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := m.publisher.PublishAlertEvent(ctx, event); err != nil {
		m.logger.Warn("发布告警事件失败",
			zap.String("alert_id", alert.ID),
			zap.String("subject", event.Subject()),
			zap.Error(err),
		)
	}
}
