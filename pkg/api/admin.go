package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"SOSRadar/pkg/database"
	"SOSRadar/pkg/model"
)

const (
	defaultAlertLimit = 100
	maxAlertLimit     = 500
	recentWindow      = 7 * 24 * time.Hour
)

// ListAlerts 管理端告警列表
func (h *Handlers) ListAlerts(c *gin.Context) {
	filter := database.AlertFilter{Limit: defaultAlertLimit}

	if status := c.Query("status"); status != "" {
		filter.Status = model.AlertStatus(status)
		if !filter.Status.IsValid() {
			badRequest(c, "Invalid status. Must be \"active\", \"cancelled\" or \"resolved\"")
			return
		}
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, maxAlertLimit)
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			badRequest(c, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	alerts, err := h.store.Alert().List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, alerts)
}

// GetAlert 告警详情，含用户和投递记录
func (h *Handlers) GetAlert(c *gin.Context) {
	id := c.Param("id")
	if !validID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "SOS alert not found"})
		return
	}
	alert, err := h.store.Alert().GetDetail(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "SOS alert not found")
		return
	}
	c.JSON(http.StatusOK, alert)
}

// ResolveAlert 管理员处理告警
func (h *Handlers) ResolveAlert(c *gin.Context) {
	id := c.Param("id")
	if !validID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "SOS alert not found"})
		return
	}
	alert, err := h.lifecycle.Resolve(c.Request.Context(), id, c.GetString("user_id"))
	if err != nil {
		h.respondError(c, err, "SOS alert not found")
		return
	}
	c.JSON(http.StatusOK, alert)
}

// GetStats 管理端概览
func (h *Handlers) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	totalUsers, err := h.store.User().GetTotalCount(ctx)
	if err != nil {
		h.statsFailed(c, err)
		return
	}
	activeSOS, err := h.store.Alert().CountByStatus(ctx, model.AlertStatusActive)
	if err != nil {
		h.statsFailed(c, err)
		return
	}
	totalSOS, err := h.store.Alert().CountByStatus(ctx, "")
	if err != nil {
		h.statsFailed(c, err)
		return
	}
	contacts, err := h.store.Contact().CountActive(ctx)
	if err != nil {
		h.statsFailed(c, err)
		return
	}
	recent, err := h.store.Alert().CountSince(ctx, time.Now().UTC().Add(-recentWindow))
	if err != nil {
		h.statsFailed(c, err)
		return
	}
	pending, err := h.store.Recipient().CountPending(ctx)
	if err != nil {
		h.statsFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_users":        totalUsers,
		"active_sos":         activeSOS,
		"total_sos":          totalSOS,
		"emergency_contacts": contacts,
		"recent_sos":         recent,
		"pending_deliveries": pending,
	})
}

func (h *Handlers) statsFailed(c *gin.Context, err error) {
	h.logger.Error("统计查询失败", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
}

// ListUsers 用户列表
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.store.User().List(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, users)
}

// GetUser 用户详情
func (h *Handlers) GetUser(c *gin.Context) {
	id := c.Param("id")
	if !validID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	user, err := h.store.User().GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "User not found")
		return
	}
	c.JSON(http.StatusOK, user)
}

type updateUserRequest struct {
	Name          *string `json:"name"`
	Email         *string `json:"email"`
	EmployeeID    *string `json:"employee_id"`
	Role          *string `json:"role"`
	EmailVerified *bool   `json:"email_verified"`
}

// UpdateUser 管理员修改用户信息和角色
func (h *Handlers) UpdateUser(c *gin.Context) {
	id := c.Param("id")
	if !validID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email == "" {
			badRequest(c, "Email cannot be empty")
			return
		}
		updates["email"] = email
	}
	if req.EmployeeID != nil {
		updates["employee_id"] = strings.TrimSpace(*req.EmployeeID)
	}
	if req.Role != nil {
		if !model.ValidRole(*req.Role) {
			badRequest(c, "Invalid role. Must be \"employee\" or \"admin\"")
			return
		}
		updates["role"] = *req.Role
	}
	if req.EmailVerified != nil {
		updates["email_verified"] = *req.EmailVerified
	}

	user, err := h.store.User().Update(c.Request.Context(), id, updates)
	if err != nil {
		h.respondError(c, err, "User not found")
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser 删除用户
func (h *Handlers) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	if !validID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err := h.store.User().Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "User not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}
