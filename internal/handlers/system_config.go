package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/ibkchat/insight/backend/internal/services"
	"github.com/ibkchat/insight/backend/pkg/response"
)

// SystemConfigHandler exposes the runtime report settings.
type SystemConfigHandler struct {
	configService *services.SystemConfigService
	reportService *services.ChatReportService
}

func NewSystemConfigHandler(configService *services.SystemConfigService, reportService *services.ChatReportService) *SystemConfigHandler {
	return &SystemConfigHandler{
		configService: configService,
		reportService: reportService,
	}
}

// ListByGroup returns the settings of one group
// GET /api/system/configs?group=report
func (h *SystemConfigHandler) ListByGroup(c *gin.Context) {
	group := c.DefaultQuery("group", "report")

	configs, err := h.configService.GetByGroup(group)
	if err != nil {
		response.ServerError(c, "failed to load configs: "+err.Error())
		return
	}

	response.Success(c, configs)
}

type updateConfigRequest struct {
	Value string `json:"value"`
}

// Update sets one key and reapplies the cron schedule, so changes to the
// report time or enabled flag take effect without a restart
// PUT /api/system/configs/:key
func (h *SystemConfigHandler) Update(c *gin.Context) {
	key := c.Param("key")

	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.configService.Set(key, req.Value); err != nil {
		response.ServerError(c, "failed to update config: "+err.Error())
		return
	}

	h.reportService.ApplySchedule()

	response.Success(c, gin.H{"key": key, "value": req.Value})
}
