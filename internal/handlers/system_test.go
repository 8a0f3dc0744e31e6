package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ibkchat/insight/backend/internal/models"
	"github.com/ibkchat/insight/backend/internal/services"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupSystemRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.ChatReport{},
		&models.IMBot{},
		&models.SystemConfig{},
		&models.SystemLog{},
		&models.AIUsageLog{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	configService := services.NewSystemConfigService(db)
	reportService := services.NewChatReportService(
		db,
		services.NewReportCollector(&stubQuerier{rowCount: 500}, services.NewReportQueryBuilder("chat_logs")),
		services.NewReportBuilder(&stubCompleter{}),
		services.NewNotificationService(db),
		configService,
		services.NewHolidayService(),
		services.NewSyncQueue(),
		time.UTC,
	)

	configHandler := NewSystemConfigHandler(configService, reportService)
	logHandler := NewSystemLogHandler(db)
	usageHandler := NewAIUsageHandler(db)

	r := gin.New()
	system := r.Group("/api/system")
	system.GET("/configs", configHandler.ListByGroup)
	system.PUT("/configs/:key", configHandler.Update)
	system.GET("/logs", logHandler.List)
	system.GET("/ai-usage", usageHandler.GetStats)
	return r, db
}

func getJSON(t *testing.T, r *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	r.ServeHTTP(w, req)

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("bad response body %q: %v", w.Body.String(), err)
	}
	return w, envelope
}

func TestListConfigsByGroup(t *testing.T) {
	r, db := setupSystemRouter(t)

	seed := []models.SystemConfig{
		{Key: "chat_report_enabled", Value: "true", Group: "report"},
		{Key: "chat_report_time", Value: "08:00", Group: "report"},
		{Key: "log_retention_days", Value: "30", Group: "general"},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	// Default group is "report"
	w, envelope := getJSON(t, r, "/api/system/configs")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var configs []models.SystemConfig
	if err := json.Unmarshal(envelope["data"], &configs); err != nil {
		t.Fatalf("bad data: %v", err)
	}
	if len(configs) != 2 {
		t.Errorf("report group size = %d, want 2", len(configs))
	}

	_, envelope = getJSON(t, r, "/api/system/configs?group=general")
	if err := json.Unmarshal(envelope["data"], &configs); err != nil {
		t.Fatalf("bad data: %v", err)
	}
	if len(configs) != 1 || configs[0].Key != "log_retention_days" {
		t.Errorf("general group = %+v, want log_retention_days only", configs)
	}
}

func TestUpdateConfigPersists(t *testing.T) {
	r, db := setupSystemRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/system/configs/chat_report_time",
		bytes.NewBufferString(`{"value":"09:30"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var cfg models.SystemConfig
	if err := db.Where("`key` = ?", "chat_report_time").First(&cfg).Error; err != nil {
		t.Fatalf("config row missing: %v", err)
	}
	if cfg.Value != "09:30" {
		t.Errorf("value = %s, want 09:30", cfg.Value)
	}
}

func TestSystemLogsEndpointFilters(t *testing.T) {
	r, db := setupSystemRouter(t)

	seed := []models.SystemLog{
		{Level: "info", Module: "chat_report", Action: "completed", Message: "ok"},
		{Level: "error", Module: "chat_report", Action: "failed", Message: "boom"},
		{Level: "info", Module: "scheduler", Action: "skip", Message: "holiday"},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	w, envelope := getJSON(t, r, "/api/system/logs?level=error")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp services.SystemLogListResponse
	if err := json.Unmarshal(envelope["data"], &resp); err != nil {
		t.Fatalf("bad data: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 {
		t.Fatalf("total = %d, items = %d, want 1/1", resp.Total, len(resp.Items))
	}
	if resp.Items[0].Message != "boom" {
		t.Errorf("message = %s, want boom", resp.Items[0].Message)
	}

	_, envelope = getJSON(t, r, "/api/system/logs?module=chat_report")
	if err := json.Unmarshal(envelope["data"], &resp); err != nil {
		t.Fatalf("bad data: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("module filter total = %d, want 2", resp.Total)
	}
}

func TestAIUsageStatsEndpoint(t *testing.T) {
	r, db := setupSystemRouter(t)

	seed := []models.AIUsageLog{
		{Provider: "openai", Model: "gpt-4o", Purpose: "chat_report", PromptTokens: 1000, CompletionTokens: 400, LatencyMs: 1200, Success: true},
		{Provider: "openai", Model: "gpt-4o", Purpose: "chat_report", PromptTokens: 900, CompletionTokens: 300, LatencyMs: 800, Success: true},
		{Provider: "anthropic", Model: "claude", Purpose: "chat_report", Success: false, ErrorMessage: "timeout"},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	w, envelope := getJSON(t, r, "/api/system/ai-usage")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var stats services.UsageStats
	if err := json.Unmarshal(envelope["data"], &stats); err != nil {
		t.Fatalf("bad data: %v", err)
	}
	if stats.TotalCalls != 3 {
		t.Errorf("total_calls = %d, want 3", stats.TotalCalls)
	}
	if stats.PromptTokens != 1900 || stats.CompletionTokens != 700 {
		t.Errorf("tokens = %d/%d, want 1900/700", stats.PromptTokens, stats.CompletionTokens)
	}
	if stats.SuccessCount != 2 || stats.FailureCount != 1 {
		t.Errorf("success/failure = %d/%d, want 2/1", stats.SuccessCount, stats.FailureCount)
	}
}
