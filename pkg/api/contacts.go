package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"SOSRadar/pkg/model"
)

// emergencyContactRequest 字段均为可选，创建时 name 和 role 必填
type emergencyContactRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// ListEmergencyContacts 目录联系人列表
func (h *Handlers) ListEmergencyContacts(c *gin.Context) {
	contacts, err := h.store.Contact().List(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, contacts)
}

// CreateEmergencyContact 新建目录联系人，默认启用
func (h *Handlers) CreateEmergencyContact(c *gin.Context) {
	var req emergencyContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	name, role := trimmed(req.Name), trimmed(req.Role)
	if name == "" || role == "" {
		badRequest(c, "Name and role are required")
		return
	}

	contact := &model.EmergencyContact{
		Name:     name,
		Email:    optional(req.Email),
		Phone:    optional(req.Phone),
		Role:     role,
		IsActive: true,
	}
	if req.IsActive != nil {
		contact.IsActive = *req.IsActive
	}

	if err := h.store.Contact().Create(c.Request.Context(), contact); err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, contact)
}

// UpdateEmergencyContact 部分更新
func (h *Handlers) UpdateEmergencyContact(c *gin.Context) {
	id := c.Param("id")
	if !validID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Emergency contact not found"})
		return
	}

	var req emergencyContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		if trimmed(req.Name) == "" {
			badRequest(c, "Name cannot be empty")
			return
		}
		updates["name"] = trimmed(req.Name)
	}
	if req.Role != nil {
		if trimmed(req.Role) == "" {
			badRequest(c, "Role cannot be empty")
			return
		}
		updates["role"] = trimmed(req.Role)
	}
	if req.Email != nil {
		updates["email"] = optional(req.Email)
	}
	if req.Phone != nil {
		updates["phone"] = optional(req.Phone)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	contact, err := h.store.Contact().Update(c.Request.Context(), id, updates)
	if err != nil {
		h.respondError(c, err, "Emergency contact not found")
		return
	}
	c.JSON(http.StatusOK, contact)
}

// DeleteEmergencyContact 删除目录联系人
func (h *Handlers) DeleteEmergencyContact(c *gin.Context) {
	id := c.Param("id")
	if !validID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Emergency contact not found"})
		return
	}
	if err := h.store.Contact().Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "Emergency contact not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Emergency contact deleted successfully"})
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// optional 空字符串按未设置处理
func optional(s *string) *string {
	v := trimmed(s)
	if v == "" {
		return nil
	}
	return &v
}
