package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"membership_app_echo/internal/models"
	"membership_app_echo/internal/reconcile"
	"membership_app_echo/internal/services"
	"membership_app_echo/internal/tasks"
)

var logger *logrus.Logger

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	logger = services.GetLogger()

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL not set")
	}

	db, err := services.InitDB(databaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := services.AutoMigrate(db); err != nil {
		logger.Fatalf("Failed to run database migrations: %v", err)
	}

	// Build the reconciliation job and register task handlers
	mailer := services.NewMailketingService()
	job := reconcile.NewJob(
		db,
		services.NewXenditService(),
		mailer,
		mailer,
		services.NewRevenueService(db),
	)

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err := services.NewRedisCache(redisURL)
		if err != nil {
			logger.Warnf("Redis unavailable, running without advisory locks: %v", err)
		} else {
			job.Locks = cache
		}
	}

	tasks.DefineTasks(job)
	ensureDefaultTasks(db)

	logger.Info("Worker started. Waiting for next tick...")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down worker...")
		cancel()
	}()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	// Run once immediately so a freshly deployed worker does not sit idle
	// until the first tick.
	processScheduledTasks(ctx, db)

	for {
		select {
		case <-ticker.C:
			processScheduledTasks(ctx, db)
		case <-ctx.Done():
			return
		}
	}
}

// ensureDefaultTasks seeds the recurring payment jobs so a fresh database gets
// the sync running without a manual schedule_task invocation.
func ensureDefaultTasks(db *gorm.DB) {
	sixHourly := "FREQ=HOURLY;INTERVAL=6"
	daily := "FREQ=DAILY;INTERVAL=1"

	defaults := []models.ScheduledTask{
		{
			TaskName:          tasks.CheckPaymentStatusTaskID,
			Arguments:         map[string]interface{}{},
			Due:               time.Now(),
			TaskType:          models.ScheduledTaskTypeRecurring,
			RecurringInterval: &sixHourly,
			MaxAttempt:        3,
			Status:            models.ScheduledTaskStatusActive,
		},
		{
			TaskName:          tasks.RepairActivationsTaskID,
			Arguments:         map[string]interface{}{},
			Due:               time.Now(),
			TaskType:          models.ScheduledTaskTypeRecurring,
			RecurringInterval: &daily,
			MaxAttempt:        3,
			Status:            models.ScheduledTaskStatusActive,
		},
	}

	for _, task := range defaults {
		var count int64
		if err := db.Model(&models.ScheduledTask{}).
			Where("task_name = ? AND task_type = ?", task.TaskName, models.ScheduledTaskTypeRecurring).
			Count(&count).Error; err != nil {
			logger.Warnf("Failed to check default task %s: %v", task.TaskName, err)
			continue
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&task).Error; err != nil {
			logger.Warnf("Failed to seed default task %s: %v", task.TaskName, err)
		} else {
			logger.Infof("Seeded recurring task %s", task.TaskName)
		}
	}
}

func processScheduledTasks(ctx context.Context, db *gorm.DB) {
	logger.Debug("Checking for pending tasks...")

	var pendingTasks []models.ScheduledTask
	now := time.Now()
	if err := db.Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, now).Find(&pendingTasks).Error; err != nil {
		logger.Errorf("Error fetching pending tasks: %v", err)
		return
	}

	if len(pendingTasks) == 0 {
		logger.Debug("No pending tasks found.")
		return
	}

	logger.Infof("Found %d pending tasks.", len(pendingTasks))

	for _, task := range pendingTasks {
		if ctx.Err() != nil {
			return
		}

		executeTask(ctx, db, task, 1)
	}
}

func executeTask(ctx context.Context, db *gorm.DB, task models.ScheduledTask, curAttempt int) {
	logger.WithFields(logrus.Fields{
		"task":    task.TaskName,
		"task_id": task.ID,
		"attempt": curAttempt,
	}).Info("Processing task")

	handler, found := tasks.GetHandler(task.TaskName)
	if !found {
		logger.Errorf("Task handler not found for: %s. Marking as failure.", task.TaskName)

		now := time.Now()
		db.Model(&task).Updates(map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": &now,
		})

		history := models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           now,
			Status:          "handler_not_found",
			AttemptNumber:   curAttempt,
			Arguments:       task.Arguments,
			Result:          map[string]interface{}{"error": "Handler not found"},
		}
		db.Create(&history)
		return
	}

	startTime := time.Now()
	result, err := handler(ctx, db, task)
	runtimeMs := int(time.Since(startTime).Milliseconds())

	status := "success"
	var resultData map[string]interface{}
	if err != nil {
		status = "failure"
		resultData = map[string]interface{}{"error": err.Error()}
		logger.Errorf("Task %s failed: %v", task.TaskName, err)
	} else {
		resultData = result
		logger.Infof("Task %s completed successfully.", task.TaskName)
	}

	history := models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           startTime,
		RuntimeMs:       runtimeMs,
		Status:          status,
		AttemptNumber:   curAttempt,
		Arguments:       task.Arguments,
		Result:          resultData,
	}
	db.Create(&history)

	taskUpdates := map[string]interface{}{
		"last_run": &startTime,
	}

	if status != "success" {
		if curAttempt < task.MaxAttempt {
			executeTask(ctx, db, task, curAttempt+1)
			return
		}
		taskUpdates["status"] = models.ScheduledTaskStatusFailure
	} else {
		switch task.TaskType {
		case models.ScheduledTaskTypeOneTime:
			taskUpdates["status"] = models.ScheduledTaskStatusDone
		case models.ScheduledTaskTypeRecurring:
			nextDue := task.NextDue()
			// Advance only to a strictly later due, otherwise the task
			// would run again on the very next tick.
			if nextDue.After(task.Due) {
				taskUpdates["status"] = models.ScheduledTaskStatusActive
				taskUpdates["due"] = nextDue
			} else {
				taskUpdates["status"] = models.ScheduledTaskStatusDone
			}
		}
	}

	db.Model(&task).Updates(taskUpdates)
}
