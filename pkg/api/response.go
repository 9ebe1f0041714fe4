package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"SOSRadar/pkg/apperr"
	"SOSRadar/pkg/database"
)

// respondError 按错误类别返回状态码，内部错误不暴露细节
func (h *Handlers) respondError(c *gin.Context, err error, notFoundMessage string) {
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMessage})
		return
	}

	if errors.Is(err, database.ErrEmailTaken) {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already in use"})
		return
	}

	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("请求处理失败",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// validID 非法的 uuid 直接按不存在处理
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
