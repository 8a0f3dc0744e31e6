package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/ibkchat/insight/backend/internal/services"
	"github.com/ibkchat/insight/backend/pkg/response"
	"gorm.io/gorm"
)

// AIUsageHandler serves aggregated LLM token accounting.
type AIUsageHandler struct {
	usageService *services.AIUsageService
}

func NewAIUsageHandler(db *gorm.DB) *AIUsageHandler {
	return &AIUsageHandler{usageService: services.NewAIUsageService(db)}
}

// GetStats returns aggregated usage statistics for an optional date range
// GET /api/system/ai-usage
func (h *AIUsageHandler) GetStats(c *gin.Context) {
	stats, err := h.usageService.GetStats(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		response.ServerError(c, "failed to get usage stats: "+err.Error())
		return
	}

	response.Success(c, stats)
}
