package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus 健康状态
type HealthStatus struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
	Message     string    `json:"message,omitempty"`
}

// CheckFunc 组件检查函数，返回 nil 表示健康
type CheckFunc func(ctx context.Context) error

// Monitor 监控系统
type Monitor struct {
	components map[string]*HealthStatus
	checks     map[string]CheckFunc
	mutex      sync.RWMutex
	timeout    time.Duration
	logger     *zap.Logger
}

// NewMonitor 创建新的监控系统
func NewMonitor(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		components: make(map[string]*HealthStatus),
		checks:     make(map[string]CheckFunc),
		timeout:    3 * time.Second,
		logger:     logger.Named("monitor"),
	}
}

// RegisterCheck 注册组件及其检查函数
func (m *Monitor) RegisterCheck(component string, check CheckFunc) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.checks[component] = check
	m.components[component] = &HealthStatus{
		Component:   component,
		Status:      StatusUnknown,
		LastChecked: time.Now(),
	}
}

// UpdateStatus 更新组件状态，变为不健康时记录告警日志
func (m *Monitor) UpdateStatus(component, status, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.components[component]; !exists {
		m.components[component] = &HealthStatus{
			Component: component,
		}
	}

	oldStatus := m.components[component].Status
	m.components[component].Status = status
	m.components[component].LastChecked = time.Now()
	m.components[component].Message = message

	if oldStatus == status {
		return
	}
	if status != StatusHealthy {
		m.logger.Warn("组件状态异常",
			zap.String("component", component),
			zap.String("status", status),
			zap.String("message", message),
		)
	} else if oldStatus != StatusUnknown {
		m.logger.Info("组件恢复健康", zap.String("component", component))
	}
}

// RunChecks 执行所有检查
func (m *Monitor) RunChecks(ctx context.Context) {
	m.mutex.RLock()
	checks := make(map[string]CheckFunc, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	m.mutex.RUnlock()

	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := check(checkCtx)
		cancel()
		if err != nil {
			m.UpdateStatus(name, StatusUnhealthy, err.Error())
			continue
		}
		m.UpdateStatus(name, StatusHealthy, "")
	}
}

// GetStatus 获取组件状态
func (m *Monitor) GetStatus(component string) *HealthStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if status, exists := m.components[component]; exists {
		copied := *status
		return &copied
	}

	return nil
}

// GetAllStatus 获取所有组件状态，按名称排序
func (m *Monitor) GetAllStatus() []HealthStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	statuses := make([]HealthStatus, 0, len(m.components))
	for _, status := range m.components {
		statuses = append(statuses, *status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Component < statuses[j].Component
	})

	return statuses
}

// Ready 没有不健康的组件
func (m *Monitor) Ready() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, status := range m.components {
		if status.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}
