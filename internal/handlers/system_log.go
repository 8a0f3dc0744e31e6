package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/ibkchat/insight/backend/internal/services"
	"github.com/ibkchat/insight/backend/pkg/response"
	"gorm.io/gorm"
)

// SystemLogHandler exposes the persisted operational log.
type SystemLogHandler struct {
	logService *services.SystemLogService
}

func NewSystemLogHandler(db *gorm.DB) *SystemLogHandler {
	return &SystemLogHandler{logService: services.NewSystemLogService(db)}
}

// List returns paginated log entries, optionally filtered by level and module
// GET /api/system/logs
func (h *SystemLogHandler) List(c *gin.Context) {
	var req services.SystemLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.logService.List(&req)
	if err != nil {
		response.ServerError(c, "failed to list system logs: "+err.Error())
		return
	}

	response.Success(c, resp)
}
