package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc 定时任务
type JobFunc func(ctx context.Context)

// Scheduler 任务调度器，上一次执行未结束时跳过本次
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler 创建任务调度器
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger: logger.Named("cron")}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob 注册任务，spec 支持 @every 1m 等描述符
func (s *Scheduler) AddJob(name, spec string, job JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug("执行定时任务", zap.String("job", name))
		job(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("注册定时任务 %s 失败: %w", name, err)
	}
	s.logger.Info("已注册定时任务", zap.String("job", name), zap.String("schedule", spec))
	return nil
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Len 已注册任务数
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// cronLogger 将 cron 日志接入 zap
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
