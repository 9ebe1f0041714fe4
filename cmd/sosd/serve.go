package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"SOSRadar/pkg/api"
	"SOSRadar/pkg/monitor"
	"SOSRadar/pkg/scheduler"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// 组件健康检查
	mon := monitor.NewMonitor(zlog)
	mon.RegisterCheck("database", func(context.Context) error { return a.store.Ping() })
	if a.nats != nil {
		mon.RegisterCheck("nats", func(context.Context) error {
			if !a.nats.IsConnected() {
				return errors.New("NATS未连接")
			}
			return nil
		})
	}
	if a.redis != nil {
		mon.RegisterCheck("redis", func(ctx context.Context) error { return a.redis.Ping(ctx).Err() })
	}
	mon.RunChecks(ctx)

	// 后台任务
	sched := scheduler.NewScheduler(zlog)
	if err := sched.AddJob("monitor", cfg.Monitor.Schedule, mon.RunChecks); err != nil {
		return err
	}
	if cfg.Reconciler.Enabled {
		if err := sched.AddJob("redelivery", cfg.Reconciler.Schedule, func(ctx context.Context) {
			if _, err := a.dispatcher.Redeliver(ctx); err != nil {
				zlog.Error("补投失败", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	var limit gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		store, err := api.NewLimiterStore(cfg.RateLimit.Store, a.redis)
		if err != nil {
			return err
		}
		limit, err = api.RateLimit(cfg.RateLimit.Rate, store)
		if err != nil {
			return err
		}
	}

	server := api.NewServer(api.ServerOptions{
		Port:            cfg.API.Port,
		ReadTimeout:     cfg.API.ReadTimeout,
		WriteTimeout:    cfg.API.WriteTimeout,
		ShutdownTimeout: cfg.API.ShutdownTimeout,
	}, a.metrics, zlog)
	handlers := api.NewHandlers(a.manager, a.store, mon, a.metrics, zlog)
	server.SetupRoutes(handlers, api.NewHeaderAuthenticator(cfg.Auth.UserHeader, a.store.User()), limit)

	return server.Run(ctx)
}
