package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"SOSRadar/pkg/model"
)

type updateProfileRequest struct {
	Name       *string `json:"name"`
	EmployeeID *string `json:"employee_id"`
}

// GetProfile 当前用户资料
func (h *Handlers) GetProfile(c *gin.Context) {
	user, err := h.store.User().GetByID(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.respondError(c, err, "User not found")
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile 用户只能修改姓名和工号
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = trimmed(req.Name)
	}
	if req.EmployeeID != nil {
		updates["employee_id"] = trimmed(req.EmployeeID)
	}
	if len(updates) == 0 {
		badRequest(c, "No fields to update")
		return
	}

	user, err := h.store.User().Update(c.Request.Context(), c.GetString("user_id"), updates)
	if err != nil {
		h.respondError(c, err, "User not found")
		return
	}
	c.JSON(http.StatusOK, user)
}

type personalContactRequest struct {
	Name         *string `json:"name"`
	Email        *string `json:"email"`
	Phone        *string `json:"phone"`
	Relationship *string `json:"relationship"`
	IsPrimary    *bool   `json:"is_primary"`
}

// ListPersonalContacts 个人紧急联系人
func (h *Handlers) ListPersonalContacts(c *gin.Context) {
	contacts, err := h.store.PersonalContact().ListByUser(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, contacts)
}

// CreatePersonalContact 新建个人联系人，设为 primary 时取消其他 primary
func (h *Handlers) CreatePersonalContact(c *gin.Context) {
	var req personalContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	name := trimmed(req.Name)
	if name == "" {
		badRequest(c, "Name is required")
		return
	}

	contact := &model.UserEmergencyContact{
		UserID:       c.GetString("user_id"),
		Name:         name,
		Email:        optional(req.Email),
		Phone:        optional(req.Phone),
		Relationship: optional(req.Relationship),
		IsPrimary:    req.IsPrimary != nil && *req.IsPrimary,
	}
	if err := h.store.PersonalContact().Create(c.Request.Context(), contact); err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, contact)
}

// UpdatePersonalContact 只能修改本人的联系人
func (h *Handlers) UpdatePersonalContact(c *gin.Context) {
	id := c.Param("id")
	if !validID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Emergency contact not found"})
		return
	}

	var req personalContactRequest
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
	if req.Email != nil {
		updates["email"] = optional(req.Email)
	}
	if req.Phone != nil {
		updates["phone"] = optional(req.Phone)
	}
	if req.Relationship != nil {
		updates["relationship"] = optional(req.Relationship)
	}
	if req.IsPrimary != nil {
		updates["is_primary"] = *req.IsPrimary
	}

	contact, err := h.store.PersonalContact().Update(c.Request.Context(), c.GetString("user_id"), id, updates)
	if err != nil {
		h.respondError(c, err, "Emergency contact not found")
		return
	}
	c.JSON(http.StatusOK, contact)
}

// DeletePersonalContact 删除本人的联系人
func (h *Handlers) DeletePersonalContact(c *gin.Context) {
	id := c.Param("id")
	if !validID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Emergency contact not found"})
		return
	}
	if err := h.store.PersonalContact().Delete(c.Request.Context(), c.GetString("user_id"), id); err != nil {
		h.respondError(c, err, "Emergency contact not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Emergency contact deleted successfully"})
}
