package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"SOSRadar/pkg/database"
	"SOSRadar/pkg/engine"
	"SOSRadar/pkg/metrics"
	"SOSRadar/pkg/model"
	"SOSRadar/pkg/monitor"
)

// Lifecycle SOS生命周期操作
type Lifecycle interface {
	Start(ctx context.Context, userID string, loc engine.Location) (*model.SOSAlert, error)
	Cancel(ctx context.Context, userID string) (*model.SOSAlert, error)
	Resolve(ctx context.Context, alertID, adminID string) (*model.SOSAlert, error)
	GetActive(ctx context.Context, userID string) (*model.SOSAlert, error)
}

// Handlers API处理程序
type Handlers struct {
	lifecycle Lifecycle
	store     *database.Store
	monitor   *monitor.Monitor
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewHandlers 创建新的API处理程序
func NewHandlers(
	lifecycle Lifecycle,
	store *database.Store,
	mon *monitor.Monitor,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		lifecycle: lifecycle,
		store:     store,
		monitor:   mon,
		metrics:   m,
		logger:    logger.Named("api"),
	}
}

// HealthCheck 健康检查处理程序
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// ReadinessCheck 就绪检查处理程序，任一组件不健康时返回 503
func (h *Handlers) ReadinessCheck(c *gin.Context) {
	if h.monitor == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	components := h.monitor.GetAllStatus()
	if !h.monitor.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": components,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": components,
	})
}
