package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"SOSRadar/pkg/messaging"
	"SOSRadar/pkg/model"
)

func runMigrate(cmd *cobra.Command, args []string) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	zlog.Info("数据库迁移完成", zap.String("driver", cfg.Database.Driver))
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	report, err := a.dispatcher.Redeliver(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "delivered=%d failed=%d skipped=%d\n",
		len(report.Delivered), len(report.Failed), len(report.Skipped))
	return nil
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	if !model.ValidRole(userRole) {
		return fmt.Errorf("无效的角色: %q", userRole)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	user := &model.User{
		Email:      userEmail,
		Name:       userName,
		EmployeeID: userEmployeeID,
		Role:       userRole,
	}
	if err := store.User().Create(cmd.Context(), user); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), user.ID)
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	if cfg.NATS.URL == "" {
		return fmt.Errorf("nats.url 未配置")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := messaging.NewNATSClient(cfg.NATS.URL, cfg.NATS.Stream, zlog)
	if err != nil {
		return err
	}
	defer nc.Close()

	out := cmd.OutOrStdout()
	err = nc.Subscribe(eventsConsumer, eventsSubject, func(data []byte) error {
		var event messaging.AlertEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("解析告警事件失败: %w", err)
		}
		fmt.Fprintf(out, "%s %-9s alert=%s user=%s status=%s\n",
			event.OccurredAt.Format(time.RFC3339), event.Type, event.AlertID, event.UserID, event.Status)
		return nil
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
