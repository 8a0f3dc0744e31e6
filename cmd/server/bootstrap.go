package main

import (
	"time"

	"github.com/ibkchat/insight/backend/internal/config"
	"github.com/ibkchat/insight/backend/internal/handlers"
	"github.com/ibkchat/insight/backend/internal/models"
	"github.com/ibkchat/insight/backend/internal/services"
	"github.com/ibkchat/insight/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	reportService *services.ChatReportService
	taskQueue     services.TaskQueue
	worker        *services.Worker
	reportHandler *handlers.ChatReportHandler
	healthHandler *handlers.HealthHandler
	configHandler *handlers.SystemConfigHandler
	logHandler    *handlers.SystemLogHandler
	usageHandler  *handlers.AIUsageHandler
}

// bootstrap initializes all application dependencies: databases, services,
// schedulers. Recovery of interrupted reports runs before the scheduler so a
// stale RUNNING row can never block the day's scheduled run.
func bootstrap(cfg *config.Config) *appServices {
	// Metadata database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	// Analytics engine. A failure here is fatal: without it no report can
	// ever be generated.
	if err := models.InitAnalyticsDB(&cfg.Analytics); err != nil {
		logger.Fatalf("Failed to connect to analytics engine: %v", err)
	}

	// Initialize system logger
	services.InitSystemLogger(models.GetDB())

	// Start system log cleanup scheduler
	services.StartLogCleanupScheduler(models.GetDB())

	timezone, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		logger.Warn().Err(err).Str("timezone", cfg.Report.Timezone).Msg("Invalid timezone, falling back to UTC")
		timezone = time.UTC
	}

	// Report pipeline services
	aiService := services.NewAIService(models.GetDB(), &cfg.OpenAI)
	notificationService := services.NewNotificationService(models.GetDB())
	configService := services.NewSystemConfigService(models.GetDB())
	holidayService := services.NewHolidayService()
	analyticsService := services.NewAnalyticsService(models.GetAnalyticsDB())
	collector := services.NewReportCollector(analyticsService, services.NewReportQueryBuilder(cfg.Analytics.Table))
	builder := services.NewReportBuilder(aiService)

	// Task queue (uses Redis if enabled, otherwise in-process goroutines)
	taskQueue := services.InitTaskQueue(cfg)

	reportService := services.NewChatReportService(
		models.GetDB(),
		collector,
		builder,
		notificationService,
		configService,
		holidayService,
		taskQueue,
		timezone,
	)

	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(reportService.ProcessReportTask)
	}

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(reportService.ProcessReportTask)
			worker.Start()
		}
	}

	// Resolve reports orphaned by a previous process, then schedule
	if n, err := reportService.RecoverInterruptedReports(); err != nil {
		logger.Warn().Err(err).Msg("Failed to recover interrupted reports")
	} else if n > 0 {
		logger.Warn().Int64("count", n).Msg("Recovered interrupted reports")
	}
	reportService.StartScheduler()

	return &appServices{
		reportService: reportService,
		taskQueue:     taskQueue,
		worker:        worker,
		reportHandler: handlers.NewChatReportHandler(reportService),
		healthHandler: handlers.NewHealthHandler(),
		configHandler: handlers.NewSystemConfigHandler(configService, reportService),
		logHandler:    handlers.NewSystemLogHandler(models.GetDB()),
		usageHandler:  handlers.NewAIUsageHandler(models.GetDB()),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.reportService.StopScheduler()
	services.StopLogCleanupScheduler()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
}
