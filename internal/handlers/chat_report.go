package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ibkchat/insight/backend/internal/services"
	"github.com/ibkchat/insight/backend/pkg/response"
)

type ChatReportHandler struct {
	reportService *services.ChatReportService
}

func NewChatReportHandler(reportService *services.ChatReportService) *ChatReportHandler {
	return &ChatReportHandler{reportService: reportService}
}

type generateReportRequest struct {
	Date  string `json:"date" binding:"required"`
	Force bool   `json:"force"`
}

// Generate starts a report generation run in the background
// POST /api/chat-reports/generate
func (h *ChatReportHandler) Generate(c *gin.Context) {
	var req generateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	report, err := h.reportService.Generate(req.Date, req.Force)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{
		"report_id":   report.ID,
		"status":      report.Status,
		"target_date": report.TargetDate.Format("2006-01-02"),
	})
}

// List returns paginated reports, newest target date first
// GET /api/chat-reports
func (h *ChatReportHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	reports, total, err := h.reportService.List(page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"items":     reports,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetByID returns a single report including its markdown body
// GET /api/chat-reports/:id
func (h *ChatReportHandler) GetByID(c *gin.Context) {
	report, err := h.reportService.GetByID(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, report)
}

// Delete removes a terminal report
// DELETE /api/chat-reports/:id
func (h *ChatReportHandler) Delete(c *gin.Context) {
	if err := h.reportService.DeleteByID(c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"deleted": true})
}
