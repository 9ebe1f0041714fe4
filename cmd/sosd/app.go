package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"SOSRadar/pkg/config"
	"SOSRadar/pkg/database"
	"SOSRadar/pkg/engine"
	"SOSRadar/pkg/geocoder"
	"SOSRadar/pkg/messaging"
	"SOSRadar/pkg/metrics"
	"SOSRadar/pkg/notifier"
)

// app 进程内共享的组件
type app struct {
	store      *database.Store
	nats       *messaging.NATSClient // 未配置时为 nil
	redis      *redis.Client         // 未使用 redis 限流时为 nil
	metrics    *metrics.Metrics
	dispatcher *engine.Dispatcher
	manager    *engine.Manager
}

func openStore(cfg *config.Config) (*database.Store, error) {
	store, err := database.Open(cfg.Database, zlog)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{store: store, metrics: metrics.NewMetrics()}

	var publisher engine.EventPublisher = messaging.NopPublisher{}
	if cfg.NATS.URL != "" {
		nc, err := messaging.NewNATSClient(cfg.NATS.URL, cfg.NATS.Stream, zlog)
		if err != nil {
			// 事件发布是尽力而为，NATS 不可用不阻止服务启动
			zlog.Warn("NATS不可用，告警事件将不会发布", zap.Error(err))
		} else {
			a.nats = nc
			publisher = nc
		}
	}

	if cfg.RateLimit.Enabled && cfg.RateLimit.Store == "redis" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("连接Redis失败: %w", err)
		}
	}

	a.dispatcher = engine.NewDispatcher(engine.DispatcherDeps{
		Contacts:      store.Contact(),
		Users:         store.User(),
		Recipients:    store.Recipient(),
		Notifications: store.Notification(),
		Notifier:      newNotifier(cfg),
		Metrics:       a.metrics,
		Logger:        zlog,
	}, engine.DispatcherConfig{
		SendTimeout: cfg.Notifier.Timeout,
		Concurrency: cfg.Notifier.Concurrency,
		MaxAge:      cfg.Reconciler.MaxAge,
		MaxAttempts: cfg.Reconciler.MaxAttempts,
		BatchSize:   cfg.Reconciler.BatchSize,
		ClaimLease:  cfg.Reconciler.ClaimLease,
	})

	a.manager = engine.NewManager(engine.ManagerDeps{
		Alerts:         store.Alert(),
		Notifications:  store.Notification(),
		Geocoder:       newGeocoder(cfg),
		Dispatcher:     a.dispatcher,
		Publisher:      publisher,
		Metrics:        a.metrics,
		Logger:         zlog,
		GeocodeTimeout: cfg.Geocoder.Timeout,
	})
	return a, nil
}

func newNotifier(cfg *config.Config) notifier.Notifier {
	if cfg.Notifier.Driver == "webhook" {
		return notifier.NewWebhookNotifier(cfg.Notifier.WebhookURL, cfg.Notifier.From, cfg.Notifier.Timeout)
	}
	return notifier.NewLogNotifier(zlog)
}

func newGeocoder(cfg *config.Config) geocoder.Geocoder {
	if cfg.Geocoder.Provider == "none" {
		return geocoder.Nop{}
	}
	return geocoder.NewNominatim(geocoder.Options{
		BaseURL:   cfg.Geocoder.BaseURL,
		UserAgent: cfg.Geocoder.UserAgent,
		Timeout:   cfg.Geocoder.Timeout,
		CacheTTL:  cfg.Geocoder.CacheTTL,
	}, zlog)
}

// close 等待进行中的扇出后再关闭连接
func (a *app) close() {
	if a.manager != nil {
		a.manager.Wait()
	}
	if a.nats != nil {
		_ = a.nats.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if err := a.store.Close(); err != nil {
		zlog.Warn("关闭数据库失败", zap.Error(err))
	}
}
