package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"SOSRadar/pkg/config"
	"SOSRadar/pkg/logger"
)

var (
	configPath string

	cfg *config.Config
	zlog *zap.Logger

	rootCmd = &cobra.Command{
		Use:   "sosd",
		Short: "员工SOS告警服务",
		Long: `sosd 负责SOS告警的发起、取消和处理，
向紧急联系人扇出通知，并定时补投未送达的通知。`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = os.Getenv("CONFIG_PATH")
			}
			if path == "" {
				if _, err := os.Stat(config.GetDefaultConfigPath()); err == nil {
					path = config.GetDefaultConfigPath()
				}
			}

			loaded, err := config.LoadConfig(path)
			if err != nil {
				return err
			}
			cfg = loaded

			l, err := logger.NewLogger(cfg.Log, cfg.App.Name)
			if err != nil {
				return err
			}
			zlog = l
			zlog.Info("配置加载完成", zap.String("path", path), zap.String("env", cfg.App.Env))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if zlog != nil {
				_ = zlog.Sync()
			}
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "启动API服务和后台任务",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移",
		RunE:  runMigrate,
	}

	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "执行一次未送达通知的补投",
		RunE:  runReconcile,
	}

	userCmd = &cobra.Command{
		Use:   "user",
		Short: "用户管理",
	}
	userCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "创建用户",
		RunE:  runUserCreate,
	}

	eventsCmd = &cobra.Command{
		Use:   "events",
		Short: "订阅并打印告警事件",
		RunE:  runEvents,
	}
)

var (
	userEmail      string
	userName       string
	userRole       string
	userEmployeeID string

	eventsConsumer string
	eventsSubject  string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径")

	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "邮箱")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "姓名")
	userCreateCmd.Flags().StringVar(&userRole, "role", "employee", "角色 employee|admin")
	userCreateCmd.Flags().StringVar(&userEmployeeID, "employee-id", "", "工号")
	_ = userCreateCmd.MarkFlagRequired("email")
	userCmd.AddCommand(userCreateCmd)

	eventsCmd.Flags().StringVar(&eventsConsumer, "consumer", "sosd-events-tail", "持久消费者名称")
	eventsCmd.Flags().StringVar(&eventsSubject, "subject", "sos.*", "订阅的主题")

	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd, userCmd, eventsCmd)
}
