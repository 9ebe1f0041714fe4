// pkg/engine/dispatcher.go
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"SOSRadar/pkg/database"
	"SOSRadar/pkg/metrics"
	"SOSRadar/pkg/model"
	"SOSRadar/pkg/notifier"
)

const (
	adminNotificationTitle = "SOS Alert Activated"
	errNoEmail             = "contact has no email address"
	errContactInactive     = "contact is no longer active"
)

// DispatcherConfig 扇出参数
type DispatcherConfig struct {
	SendTimeout time.Duration // 单次投递超时
	Concurrency int           // 同时进行的投递数
	MaxAge      time.Duration // 补投只处理该时长内创建的意向
	MaxAttempts int
	BatchSize   int
	ClaimLease  time.Duration // 投递租约时长，期间其他扇出或补投不会重复发送
}

// DispatchReport 一次扇出或补投的结果，只用于日志
type DispatchReport struct {
	AlertID        string
	Delivered      []string // 联系人ID
	Failed         []string
	Skipped        []string
	AdminsNotified int
	Errors         []string // 整个步骤失败的原因
}

func (r *DispatchReport) fields() []zap.Field {
	return []zap.Field{
		zap.String("alert_id", r.AlertID),
		zap.Int("delivered", len(r.Delivered)),
		zap.Int("failed", len(r.Failed)),
		zap.Int("skipped", len(r.Skipped)),
		zap.Int("admins_notified", r.AdminsNotified),
		zap.Strings("failed_contacts", r.Failed),
		zap.Strings("errors", r.Errors),
	}
}

// Dispatcher 扇出投递：先落库投递意向，再逐个联系人投递，互不影响
type Dispatcher struct {
	contacts      ContactStore
	users         UserStore
	recipients    RecipientStore
	notifications NotificationStore
	notifier      notifier.Notifier
	metrics       *metrics.Metrics
	logger        *zap.Logger
	cfg           DispatcherConfig
	now           func() time.Time
}

// DispatcherDeps 扇出依赖
type DispatcherDeps struct {
	Contacts      ContactStore
	Users         UserStore
	Recipients    RecipientStore
	Notifications NotificationStore
	Notifier      notifier.Notifier
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

// NewDispatcher 创建扇出器
func NewDispatcher(deps DispatcherDeps, cfg DispatcherConfig) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = time.Minute
	}
	if cfg.ClaimLease < 2*cfg.SendTimeout {
		cfg.ClaimLease = 2 * cfg.SendTimeout
	}
	return &Dispatcher{
		contacts:      deps.Contacts,
		users:         deps.Users,
		recipients:    deps.Recipients,
		notifications: deps.Notifications,
		notifier:      deps.Notifier,
		metrics:       deps.Metrics,
		logger:        deps.Logger.Named("dispatcher"),
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// delivery 一个待投递的联系人
type delivery struct {
	alert    *model.SOSAlert
	contact  *model.EmergencyContact
	intent   *model.DeliveryIntent // 意向落库失败时为 nil
	userName string
}

// Dispatch 对新激活的告警进行扇出，不返回错误
func (d *Dispatcher) Dispatch(ctx context.Context, alert *model.SOSAlert) (report DispatchReport) {
	report.AlertID = alert.ID
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("扇出异常", zap.String("alert_id", alert.ID), zap.Any("panic", r))
			report.Errors = append(report.Errors, fmt.Sprintf("panic: %v", r))
		}
	}()

	d.dispatchContacts(ctx, alert, &report)
	d.notifyAdmins(ctx, alert, &report)
	return report
}

func (d *Dispatcher) dispatchContacts(ctx context.Context, alert *model.SOSAlert, report *DispatchReport) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("联系人投递异常", zap.String("alert_id", alert.ID), zap.Any("panic", r))
			report.Errors = append(report.Errors, fmt.Sprintf("contacts panic: %v", r))
		}
	}()

	contacts, err := d.contacts.ListActive(ctx)
	if err != nil {
		d.logger.Error("加载紧急联系人失败", zap.String("alert_id", alert.ID), zap.Error(err))
		report.Errors = append(report.Errors, err.Error())
		return
	}
	if len(contacts) == 0 {
		return
	}

	ids := make([]string, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}

	// 投递前先落库意向
	intentByContact := make(map[string]*model.DeliveryIntent, len(contacts))
	intents, err := d.recipients.Ensure(ctx, alert.ID, ids)
	if err != nil {
		d.logger.Error("保存投递意向失败，继续投递但无法标记结果",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		report.Errors = append(report.Errors, err.Error())
	}
	for _, intent := range intents {
		intentByContact[intent.EmergencyContactID] = intent
	}

	userName := d.userName(ctx, alert)

	var candidates []delivery
	for _, contact := range contacts {
		intent := intentByContact[contact.ID]
		if !contact.HasEmail() || (intent != nil && intent.NotificationSent) {
			report.Skipped = append(report.Skipped, contact.ID)
			d.metrics.RecordDelivery(metrics.OutcomeSkipped)
			continue
		}
		candidates = append(candidates, delivery{alert: alert, contact: contact, intent: intent, userName: userName})
	}

	jobs := d.claim(ctx, candidates, report)
	d.deliverAll(ctx, jobs, report)
}

// claim 为待投递项加租约，只保留本实例抢到的；没有意向的直接投递
func (d *Dispatcher) claim(ctx context.Context, candidates []delivery, report *DispatchReport) []delivery {
	ids := make([]string, 0, len(candidates))
	for _, job := range candidates {
		if job.intent != nil {
			ids = append(ids, job.intent.ID)
		}
	}
	if len(ids) == 0 {
		return candidates
	}

	now := d.now()
	won, err := d.recipients.Claim(ctx, ids, now, now.Add(d.cfg.ClaimLease))
	if err != nil {
		// 宁可重复也不漏发
		d.logger.Error("占用投递意向失败，按未占用继续投递", zap.Error(err))
		report.Errors = append(report.Errors, err.Error())
		return candidates
	}

	claimed := make(map[string]struct{}, len(won))
	for _, id := range won {
		claimed[id] = struct{}{}
	}
	jobs := make([]delivery, 0, len(candidates))
	for _, job := range candidates {
		if job.intent != nil {
			if _, ok := claimed[job.intent.ID]; !ok {
				// 其他扇出或补投正在处理
				report.Skipped = append(report.Skipped, job.intent.EmergencyContactID)
				continue
			}
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func (d *Dispatcher) notifyAdmins(ctx context.Context, alert *model.SOSAlert, report *DispatchReport) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("管理员通知异常", zap.String("alert_id", alert.ID), zap.Any("panic", r))
			report.Errors = append(report.Errors, fmt.Sprintf("admins panic: %v", r))
		}
	}()

	admins, err := d.users.ListAdmins(ctx)
	if err != nil {
		d.logger.Error("加载管理员失败", zap.String("alert_id", alert.ID), zap.Error(err))
		report.Errors = append(report.Errors, err.Error())
		return
	}
	if len(admins) == 0 {
		return
	}

	location := notifier.FormatLocation(alert.Address, alert.Latitude, alert.Longitude)
	if location == "" {
		location = "Unknown"
	}

	alertID := alert.ID
	notifications := make([]*model.Notification, 0, len(admins))
	for _, admin := range admins {
		notifications = append(notifications, &model.Notification{
			UserID:     admin.ID,
			SOSAlertID: &alertID,
			Title:      adminNotificationTitle,
			Message:    fmt.Sprintf("An employee has activated an SOS alert. Location: %s", location),
			Type:       model.NotificationTypeSOS,
		})
	}

	if err := d.notifications.Create(ctx, notifications...); err != nil {
		d.logger.Error("写入管理员通知失败", zap.String("alert_id", alert.ID), zap.Error(err))
		report.Errors = append(report.Errors, err.Error())
		return
	}
	report.AdminsNotified = len(notifications)
	d.metrics.RecordAdminNotifications(len(notifications))
}

// Redeliver 重试仍处于 active 告警下未投递成功的意向
func (d *Dispatcher) Redeliver(ctx context.Context) (DispatchReport, error) {
	var report DispatchReport

	filter := database.PendingFilter{
		Since:       d.now().Add(-d.cfg.MaxAge),
		MaxAttempts: d.cfg.MaxAttempts,
		Limit:       d.cfg.BatchSize,
		Now:         d.now(),
	}
	if d.cfg.MaxAge <= 0 {
		filter.Since = time.Time{}
	}

	pending, err := d.recipients.ListPending(ctx, filter)
	if err != nil {
		return report, fmt.Errorf("查询待补投意向失败: %w", err)
	}

	var candidates []delivery
	for _, intent := range pending {
		if intent.Alert == nil {
			continue
		}
		candidates = append(candidates, delivery{alert: intent.Alert, contact: intent.Contact, intent: intent})
	}

	// 查询与占用之间可能被其他实例抢先，只处理占用成功的
	var jobs []delivery
	for _, job := range d.claim(ctx, candidates, &report) {
		intent := job.intent
		switch {
		case intent.Contact == nil || !intent.Contact.IsActive:
			// 联系人已删除或停用，累计尝试次数直至超过上限
			d.recordFailure(ctx, intent, errContactInactive, nil)
			report.Skipped = append(report.Skipped, intent.EmergencyContactID)
			continue
		case !intent.Contact.HasEmail():
			d.recordFailure(ctx, intent, errNoEmail, nil)
			report.Skipped = append(report.Skipped, intent.EmergencyContactID)
			continue
		}
		job.userName = intent.Alert.User.DisplayName()
		jobs = append(jobs, job)
	}

	d.deliverAll(ctx, jobs, &report)
	if len(pending) > 0 {
		d.logger.Info("补投完成", report.fields()...)
	}
	return report, nil
}

// deliverAll 并发投递，单个联系人的失败或 panic 不影响其他联系人
func (d *Dispatcher) deliverAll(ctx context.Context, jobs []delivery, report *DispatchReport) {
	if len(jobs) == 0 {
		return
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(d.cfg.Concurrency)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			ok := d.deliver(ctx, job)
			mu.Lock()
			if ok {
				report.Delivered = append(report.Delivered, job.contact.ID)
			} else {
				report.Failed = append(report.Failed, job.contact.ID)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, job delivery) (ok bool) {
	log := d.logger.With(
		zap.String("alert_id", job.alert.ID),
		zap.String("contact_id", job.contact.ID),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("投递异常", zap.Any("panic", r))
			d.recordFailure(ctx, job.intent, fmt.Sprintf("panic: %v", r), nil)
			d.metrics.RecordDelivery(metrics.OutcomeFailed)
			ok = false
		}
	}()

	msg := notifier.SOSMessage{
		AlertID:     job.alert.ID,
		ContactName: job.contact.Name,
		UserName:    job.userName,
		Location:    notifier.FormatLocation(job.alert.Address, job.alert.Latitude, job.alert.Longitude),
		StartedAt:   job.alert.StartedAt,
	}

	_, err := callWithTimeout(ctx, d.cfg.SendTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.notifier.Send(ctx, *job.contact.Email, msg.Subject(), msg.Body())
	})
	if err != nil {
		log.Warn("投递失败", zap.Error(err))
		// 超时的发送可能仍在进行，保留租约直至到期
		var hold *time.Time
		if errors.Is(err, context.DeadlineExceeded) {
			until := d.now().Add(d.cfg.ClaimLease)
			hold = &until
		}
		d.recordFailure(ctx, job.intent, err.Error(), hold)
		d.metrics.RecordDelivery(metrics.OutcomeFailed)
		return false
	}

	d.metrics.RecordDelivery(metrics.OutcomeDelivered)
	if job.intent == nil {
		return true
	}
	if _, err := d.recipients.MarkDelivered(ctx, job.intent.ID, d.now()); err != nil {
		// 已送达但未标记，补投时可能重复发送
		log.Error("标记投递成功失败", zap.Error(err))
	}
	return true
}

func (d *Dispatcher) recordFailure(ctx context.Context, intent *model.DeliveryIntent, cause string, hold *time.Time) {
	if intent == nil {
		return
	}
	if err := d.recipients.RecordFailure(ctx, intent.ID, cause, hold); err != nil {
		d.logger.Error("记录投递失败出错",
			zap.String("alert_id", intent.SOSAlertID),
			zap.String("contact_id", intent.EmergencyContactID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) userName(ctx context.Context, alert *model.SOSAlert) string {
	if alert.User != nil {
		return alert.User.DisplayName()
	}
	user, err := d.users.GetByID(ctx, alert.UserID)
	if err != nil {
		d.logger.Warn("加载告警用户失败", zap.String("alert_id", alert.ID), zap.Error(err))
		return (*model.User)(nil).DisplayName()
	}
	return user.DisplayName()
}
