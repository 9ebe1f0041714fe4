package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"SOSRadar/pkg/database"
	"SOSRadar/pkg/model"
)

const identityKey = "identity"

// Identity 已认证的调用方
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin 是否管理员
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == model.RoleAdmin
}

// Authenticator 认证协作方，返回 ErrUnauthenticated 表示凭据缺失或无效
type Authenticator interface {
	Authenticate(c *gin.Context) (*Identity, error)
}

// ErrUnauthenticated 请求未携带有效身份
var ErrUnauthenticated = errors.New("unauthenticated")

// UserLookup 按ID查询用户
type UserLookup interface {
	GetByID(ctx context.Context, userID string) (*model.User, error)
}

// HeaderAuthenticator 信任网关注入的用户ID请求头，角色以用户表为准
type HeaderAuthenticator struct {
	header string
	users  UserLookup
}

func NewHeaderAuthenticator(header string, users UserLookup) *HeaderAuthenticator {
	return &HeaderAuthenticator{header: header, users: users}
}

func (a *HeaderAuthenticator) Authenticate(c *gin.Context) (*Identity, error) {
	userID := c.GetHeader(a.header)
	if userID == "" || !validID(userID) {
		return nil, ErrUnauthenticated
	}
	user, err := a.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return &Identity{UserID: user.ID, Role: user.Role}, nil
}

// AuthRequired 认证中间件
func AuthRequired(auth Authenticator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := auth.Authenticate(c)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			logger.Error("认证失败", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Authentication unavailable"})
			return
		}
		c.Set(identityKey, identity)
		c.Set("user_id", identity.UserID)
		c.Next()
	}
}

// AdminRequired 必须在 AuthRequired 之后使用
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentIdentity(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

func currentIdentity(c *gin.Context) *Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*Identity)
	return identity
}

// RequestLogger 使用 zap 记录访问日志
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if userID := c.GetString("user_id"); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("HTTP请求", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("HTTP请求", fields...)
		default:
			logger.Info("HTTP请求", fields...)
		}
	}
}
