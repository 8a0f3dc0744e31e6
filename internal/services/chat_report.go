package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ibkchat/insight/backend/internal/models"
	"github.com/ibkchat/insight/backend/pkg/logger"
	"github.com/ibkchat/insight/backend/pkg/response"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// minRowThreshold is the minimum number of chat rows a day must have for a
// report to be worth generating. Below it the run ends as SKIPPED.
const minRowThreshold = 50

// Runtime setting keys read from system_configs.
const (
	configKeyReportEnabled = "chat_report_enabled"
	configKeyReportTime    = "chat_report_time"
	configKeyReportCountry = "chat_report_country"
	configKeyReportBotIDs  = "chat_report_im_bot_ids"
)

// ChatReportService owns the report lifecycle: creation, the generation
// pipeline, startup recovery and the daily schedule.
type ChatReportService struct {
	db                  *gorm.DB
	collector           *ReportCollector
	builder             *ReportBuilder
	notificationService *NotificationService
	configService       *SystemConfigService
	holidayService      *HolidayService
	queue               TaskQueue
	timezone            *time.Location

	cronScheduler  *cron.Cron
	currentEntryID cron.EntryID
}

func NewChatReportService(
	db *gorm.DB,
	collector *ReportCollector,
	builder *ReportBuilder,
	notificationService *NotificationService,
	configService *SystemConfigService,
	holidayService *HolidayService,
	queue TaskQueue,
	timezone *time.Location,
) *ChatReportService {
	if timezone == nil {
		timezone = time.UTC
	}
	return &ChatReportService{
		db:                  db,
		collector:           collector,
		builder:             builder,
		notificationService: notificationService,
		configService:       configService,
		holidayService:      holidayService,
		queue:               queue,
		timezone:            timezone,
	}
}

// normalizeDate parses a date string and normalizes it to UTC midnight,
// the canonical form used for report identity. Accepts plain dates and
// RFC3339 timestamps.
func normalizeDate(dateStr string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", dateStr); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	if t, err := time.Parse(time.RFC3339, dateStr); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", dateStr)
}

// Generate creates a RUNNING report record for the given date and enqueues
// the generation task. It returns the record immediately; the pipeline runs
// in the background.
//
// A RUNNING report for the same date always conflicts, even with force. A
// terminal report conflicts unless force is set, in which case it is
// replaced.
func (s *ChatReportService) Generate(dateStr string, force bool) (*models.ChatReport, error) {
	targetDate, err := normalizeDate(dateStr)
	if err != nil {
		return nil, response.NewBadRequest(err.Error())
	}

	var existing models.ChatReport
	findErr := s.db.Where("target_date = ?", targetDate).First(&existing).Error
	if findErr == nil {
		if existing.Status == models.ReportStatusRunning {
			return nil, response.NewConflict("Report generation already in progress for this date")
		}
		if !force {
			return nil, response.NewConflict("Report already exists for this date, use force to regenerate")
		}
		if err := s.db.Delete(&models.ChatReport{}, "id = ?", existing.ID).Error; err != nil {
			return nil, response.NewServerError(fmt.Sprintf("Failed to replace existing report: %v", err))
		}
	} else if !errors.Is(findErr, gorm.ErrRecordNotFound) {
		return nil, response.NewServerError(fmt.Sprintf("Failed to query existing report: %v", findErr))
	}

	report := &models.ChatReport{
		ID:         uuid.NewString(),
		TargetDate: targetDate,
		Status:     models.ReportStatusRunning,
		StartedAt:  time.Now(),
	}
	if err := s.db.Create(report).Error; err != nil {
		// Two concurrent requests can pass the existence check; the unique
		// index on target_date decides the winner.
		if isDuplicateKeyError(err) {
			return nil, response.NewConflict("Report generation already in progress for this date")
		}
		return nil, response.NewServerError(fmt.Sprintf("Failed to create report: %v", err))
	}

	LogInfo("chat_report", "generate", fmt.Sprintf("Report %s queued for %s", report.ID, targetDate.Format("2006-01-02")), nil)

	task := &ReportTask{
		ReportID:   report.ID,
		TargetDate: targetDate.Format("2006-01-02"),
	}
	if err := s.queue.Enqueue(task); err != nil {
		// The record would stay RUNNING forever without a task behind it.
		s.finishFailed(report, fmt.Sprintf("Failed to enqueue report task: %v", err))
		return nil, response.NewServerError(fmt.Sprintf("Failed to enqueue report task: %v", err))
	}

	return report, nil
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}

// ProcessReportTask is the queue processor entry point. Any failure inside
// the pipeline resolves the report to a terminal state; the task itself never
// retries.
func (s *ChatReportService) ProcessReportTask(ctx context.Context, task *ReportTask) error {
	var report models.ChatReport
	if err := s.db.Where("id = ?", task.ReportID).First(&report).Error; err != nil {
		logger.Warnf("[ChatReport] Task for unknown report %s: %v", task.ReportID, err)
		return nil
	}
	if report.Status != models.ReportStatusRunning {
		logger.Warnf("[ChatReport] Report %s already resolved to %s, skipping task", report.ID, report.Status)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[ChatReport] Panic during report %s: %v", report.ID, r)
			s.finishFailed(&report, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.run(ctx, &report)
	return nil
}

// run executes the generation pipeline for one RUNNING report.
func (s *ChatReportService) run(ctx context.Context, report *models.ChatReport) {
	start, end := s.dayWindow(report.TargetDate)
	dateStr := report.TargetDate.Format("2006-01-02")

	logger.Infof("[ChatReport] Generating report for %s (window %s - %s)",
		dateStr, start.Format(time.RFC3339), end.Format(time.RFC3339))

	rowCount, err := s.collector.CountRows(ctx, start, end)
	if err != nil {
		s.finishFailed(report, fmt.Sprintf("Row count check failed: %v", err))
		s.notifyFailure(report)
		return
	}

	report.RowCount = rowCount
	if rowCount < minRowThreshold {
		s.finishSkipped(report, fmt.Sprintf("Data insufficient: %d rows (minimum: %d)", rowCount, minRowThreshold))
		return
	}

	data := s.collector.CollectAll(ctx, start, end)
	data.HighValueQuestions = TopHighValueQuestions(data.Candidates)

	markdown, err := s.builder.GenerateReport(ctx, report.TargetDate, data)
	if err != nil {
		s.finishFailed(report, err.Error())
		s.notifyFailure(report)
		return
	}

	report.ReportMarkdown = markdown
	report.ReportMetadata = s.buildMetadata(data)
	s.finishCompleted(report)
	s.notifyCompletion(report, data)
}

// dayWindow converts the UTC-midnight target date into the local reporting
// day it names. AddDate keeps the window aligned to local midnight across
// DST transitions.
func (s *ChatReportService) dayWindow(targetDate time.Time) (time.Time, time.Time) {
	start := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, s.timezone)
	return start, start.AddDate(0, 0, 1)
}

func (s *ChatReportService) finishCompleted(report *models.ChatReport) {
	now := time.Now()
	report.Status = models.ReportStatusCompleted
	report.CompletedAt = &now
	report.DurationMs = now.Sub(report.StartedAt).Milliseconds()
	report.ErrorMessage = ""

	if err := s.db.Save(report).Error; err != nil {
		logger.Errorf("[ChatReport] Failed to persist completed report %s: %v", report.ID, err)
		return
	}
	LogInfo("chat_report", "completed",
		fmt.Sprintf("Report %s completed in %dms (%d rows)", report.ID, report.DurationMs, report.RowCount), nil)
}

func (s *ChatReportService) finishFailed(report *models.ChatReport, errMsg string) {
	now := time.Now()
	report.Status = models.ReportStatusFailed
	report.ErrorMessage = errMsg
	report.CompletedAt = &now
	report.DurationMs = now.Sub(report.StartedAt).Milliseconds()

	if err := s.db.Save(report).Error; err != nil {
		logger.Errorf("[ChatReport] Failed to persist failed report %s: %v", report.ID, err)
		return
	}
	LogError("chat_report", "failed",
		fmt.Sprintf("Report %s failed: %s", report.ID, errMsg), nil)
}

// finishSkipped resolves a thin-data day. Skipping is a policy outcome, not
// an error, so nobody gets notified.
func (s *ChatReportService) finishSkipped(report *models.ChatReport, reason string) {
	now := time.Now()
	report.Status = models.ReportStatusSkipped
	report.ErrorMessage = reason
	report.CompletedAt = &now
	report.DurationMs = now.Sub(report.StartedAt).Milliseconds()

	if err := s.db.Save(report).Error; err != nil {
		logger.Errorf("[ChatReport] Failed to persist skipped report %s: %v", report.ID, err)
		return
	}
	LogInfo("chat_report", "skipped",
		fmt.Sprintf("Report %s skipped: %s", report.ID, reason), nil)
}

// buildMetadata renders the machine-readable summary stored alongside the
// markdown report.
func (s *ChatReportService) buildMetadata(data *CollectedReportData) string {
	topCategories := make([]string, 0, 5)
	for i, cs := range data.CategorySuccess {
		if i >= 5 {
			break
		}
		topCategories = append(topCategories, cs.Category)
	}

	meta := map[string]interface{}{
		"total_requests":       data.KPI.TotalRequests,
		"success_rate":         data.KPI.SuccessRate,
		"token_p99":            data.KPI.TokenP99,
		"top_categories":       topCategories,
		"failure_categories":   len(data.Failures),
		"high_value_questions": len(data.HighValueQuestions),
		"token_outliers":       len(data.TokenOutliers),
	}

	blob, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(blob)
}

// notifyCompletion sends the daily summary to subscribed bots. Delivery is
// best effort; the report is already COMPLETED.
func (s *ChatReportService) notifyCompletion(report *models.ChatReport, data *CollectedReportData) {
	dateStr := report.TargetDate.Format("2006-01-02")
	message := fmt.Sprintf(
		"Daily chat report for %s is ready.\n\n- Requests: %d\n- Success rate: %.1f%%\n- Token p99: %d\n- High-value questions: %d",
		dateStr, data.KPI.TotalRequests, data.KPI.SuccessRate, data.KPI.TokenP99, len(data.HighValueQuestions))

	n := &ReportNotification{
		Title:    fmt.Sprintf("Chat Report %s", dateStr),
		Message:  message,
		Severity: SeverityInfo,
	}
	if err := s.notificationService.Send(s.configService.GetUintList(configKeyReportBotIDs), n); err != nil {
		logger.Warnf("[ChatReport] Completion notification failed: %v", err)
	}
}

func (s *ChatReportService) notifyFailure(report *models.ChatReport) {
	dateStr := report.TargetDate.Format("2006-01-02")
	n := &ReportNotification{
		Title:    fmt.Sprintf("Chat Report %s FAILED", dateStr),
		Message:  report.ErrorMessage,
		Severity: SeverityCritical,
	}
	if err := s.notificationService.Send(s.configService.GetUintList(configKeyReportBotIDs), n); err != nil {
		logger.Warnf("[ChatReport] Failure notification failed: %v", err)
	}
}

// RecoverInterruptedReports resolves reports left RUNNING by a previous
// process. Called once at startup, before the scheduler starts.
func (s *ChatReportService) RecoverInterruptedReports() (int64, error) {
	now := time.Now()
	result := s.db.Model(&models.ChatReport{}).
		Where("status = ?", models.ReportStatusRunning).
		Updates(map[string]interface{}{
			"status":        models.ReportStatusFailed,
			"error_message": "interrupted by server restart",
			"completed_at":  now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		LogWarning("chat_report", "recovery",
			fmt.Sprintf("Marked %d interrupted report(s) as failed", result.RowsAffected), nil)
	}
	return result.RowsAffected, nil
}

// --- API queries ---

func (s *ChatReportService) List(page, pageSize int) ([]models.ChatReport, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := s.db.Model(&models.ChatReport{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reports []models.ChatReport
	err := s.db.Order("target_date DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&reports).Error
	return reports, total, err
}

func (s *ChatReportService) GetByID(id string) (*models.ChatReport, error) {
	var report models.ChatReport
	if err := s.db.Where("id = ?", id).First(&report).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("Report not found")
		}
		return nil, err
	}
	return &report, nil
}

func (s *ChatReportService) DeleteByID(id string) error {
	report, err := s.GetByID(id)
	if err != nil {
		return err
	}
	if report.Status == models.ReportStatusRunning {
		return response.NewConflict("Cannot delete a report while generation is in progress")
	}
	return s.db.Delete(&models.ChatReport{}, "id = ?", id).Error
}

// --- scheduler ---

func (s *ChatReportService) StartScheduler() {
	s.cronScheduler = cron.New(cron.WithLocation(s.timezone))

	s.updateSchedule()

	s.cronScheduler.Start()
	logger.Infof("[ChatReport] Scheduler started (timezone %s)", s.timezone)
}

func (s *ChatReportService) StopScheduler() {
	if s.cronScheduler != nil {
		s.cronScheduler.Stop()
	}
}

// ApplySchedule re-reads the configured report time and reschedules the
// daily job. Call after changing chat_report_time.
func (s *ChatReportService) ApplySchedule() {
	if s.cronScheduler == nil {
		return
	}
	s.updateSchedule()
}

func (s *ChatReportService) updateSchedule() {
	if s.currentEntryID != 0 {
		s.cronScheduler.Remove(s.currentEntryID)
	}

	reportTime := s.configService.GetWithDefault(configKeyReportTime, "08:00")
	parts := strings.Split(reportTime, ":")
	hour := "8"
	minute := "0"
	if len(parts) == 2 {
		hour = parts[0]
		minute = parts[1]
	}

	cronExpr := fmt.Sprintf("%s %s * * *", minute, hour)

	entryID, err := s.cronScheduler.AddFunc(cronExpr, func() {
		s.runScheduled()
	})
	if err != nil {
		logger.Errorf("[ChatReport] Failed to add cron job: %v", err)
		return
	}

	s.currentEntryID = entryID
	logger.Infof("[ChatReport] Scheduled at %s (cron: %s)", reportTime, cronExpr)
}

// runScheduled is the daily cron entry point. It generates yesterday's
// report, skipping disabled state and non-working days.
func (s *ChatReportService) runScheduled() {
	if !s.configService.GetBool(configKeyReportEnabled, false) {
		logger.Infof("[ChatReport] Scheduled run skipped: reporting disabled")
		return
	}

	now := time.Now().In(s.timezone)
	country := s.configService.GetWithDefault(configKeyReportCountry, "NONE")
	if !s.holidayService.IsWorkday(now, country) {
		logger.Infof("[ChatReport] Scheduled run skipped: %s is not a workday (%s)",
			now.Format("2006-01-02"), country)
		return
	}

	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
	if _, err := s.Generate(yesterday, false); err != nil {
		var appErr *response.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus == 409 {
			logger.Infof("[ChatReport] Scheduled run skipped: %v", err)
			return
		}
		logger.Errorf("[ChatReport] Scheduled run failed: %v", err)
	}
}
