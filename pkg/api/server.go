package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"SOSRadar/pkg/metrics"
)

// ServerOptions HTTP服务参数
type ServerOptions struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server API服务器
type Server struct {
	router          *gin.Engine
	srv             *http.Server
	logger          *zap.Logger
	shutdownTimeout time.Duration
}

// NewServer 创建新的API服务器
func NewServer(opts ServerOptions, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()

	// 设置中间件
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger.Named("http")))
	if m != nil {
		router.Use(m.GinMiddleware())
	}

	srv := &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}

	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	return &Server{
		router:          router,
		srv:             srv,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}
}

// Router 供测试直接驱动
func (s *Server) Router() *gin.Engine {
	return s.router
}

// SetupRoutes 设置路由，limit 为 nil 时不限流
func (s *Server) SetupRoutes(h *Handlers, auth Authenticator, limit gin.HandlerFunc) {
	// 健康检查
	s.router.GET("/health", h.HealthCheck)
	s.router.GET("/ready", h.ReadinessCheck)
	if h.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	api := s.router.Group("/api")
	api.Use(AuthRequired(auth, s.logger))
	if limit != nil {
		api.Use(limit)
	}

	sos := api.Group("/sos")
	{
		sos.POST("/start", h.StartSOS)
		sos.POST("/cancel", h.CancelSOS)
		sos.GET("/active", h.GetActiveSOS)
		sos.GET("/history", h.GetSOSHistory)
	}

	profile := api.Group("/profile")
	{
		profile.GET("", h.GetProfile)
		profile.PUT("", h.UpdateProfile)
		profile.GET("/emergency-contacts", h.ListPersonalContacts)
		profile.POST("/emergency-contacts", h.CreatePersonalContact)
		profile.PUT("/emergency-contacts/:id", h.UpdatePersonalContact)
		profile.DELETE("/emergency-contacts/:id", h.DeletePersonalContact)
	}

	notifications := api.Group("/notifications")
	{
		notifications.GET("", h.ListNotifications)
		notifications.POST("/:id/read", h.MarkNotificationRead)
	}

	admin := api.Group("/admin")
	admin.Use(AdminRequired())
	{
		admin.GET("/stats", h.GetStats)

		admin.GET("/sos-alerts", h.ListAlerts)
		admin.GET("/sos-alerts/:id", h.GetAlert)
		admin.POST("/sos-alerts/:id/resolve", h.ResolveAlert)

		admin.GET("/emergency-contacts", h.ListEmergencyContacts)
		admin.POST("/emergency-contacts", h.CreateEmergencyContact)
		admin.PUT("/emergency-contacts/:id", h.UpdateEmergencyContact)
		admin.DELETE("/emergency-contacts/:id", h.DeleteEmergencyContact)

		admin.GET("/users", h.ListUsers)
		admin.GET("/users/:id", h.GetUser)
		admin.PUT("/users/:id", h.UpdateUser)
		admin.DELETE("/users/:id", h.DeleteUser)
	}
}

// Run 启动服务器，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API服务器启动", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "启动服务器失败")
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	// 优雅关闭
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "服务器关闭失败")
	}
	s.logger.Info("服务器已关闭")
	return nil
}
