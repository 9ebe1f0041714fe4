package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const notificationLimit = 50

// ListNotifications 站内通知，unread=true 时只返回未读
func (h *Handlers) ListNotifications(c *gin.Context) {
	unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))

	notifications, err := h.store.Notification().ListByUser(
		c.Request.Context(), c.GetString("user_id"), unreadOnly, notificationLimit)
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// MarkNotificationRead 标记已读，他人的通知按不存在处理
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	id := c.Param("id")
	if !validID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	if err := h.store.Notification().MarkRead(c.Request.Context(), c.GetString("user_id"), id); err != nil {
		h.respondError(c, err, "Notification not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}
