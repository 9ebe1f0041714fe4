package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"SOSRadar/pkg/engine"
)

// StartSOS 发起SOS，坐标可选
func (h *Handlers) StartSOS(c *gin.Context) {
	var loc engine.Location
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&loc); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, "Invalid request body")
			return
		}
	}

	alert, err := h.lifecycle.Start(c.Request.Context(), c.GetString("user_id"), loc)
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, alert)
}

// CancelSOS 取消本人进行中的SOS
func (h *Handlers) CancelSOS(c *gin.Context) {
	alert, err := h.lifecycle.Cancel(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.respondError(c, err, "No active SOS")
		return
	}
	c.JSON(http.StatusOK, alert)
}

// GetActiveSOS 没有进行中的SOS时返回 null
func (h *Handlers) GetActiveSOS(c *gin.Context) {
	alert, err := h.lifecycle.GetActive(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.respondError(c, err, "No active SOS")
		return
	}
	if alert == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// GetSOSHistory 本人的历史告警
func (h *Handlers) GetSOSHistory(c *gin.Context) {
	alerts, err := h.store.Alert().ListByUser(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, alerts)
}
