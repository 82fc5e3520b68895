package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"membership_app_echo/internal/handlers"
	"membership_app_echo/internal/reconcile"
	"membership_app_echo/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	logger := services.GetLogger()

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL not set")
	}

	db, err := services.InitDB(databaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run auto-migration
	if err := services.AutoMigrate(db); err != nil {
		logger.Fatalf("Failed to run database migrations: %v", err)
	}

	// Build the reconciliation job with its collaborators
	mailer := services.NewMailketingService()
	job := reconcile.NewJob(
		db,
		services.NewXenditService(),
		mailer,
		mailer,
		services.NewRevenueService(db),
	)

	// Redis is optional. Without it the cron endpoints run unlocked, which
	// the conditional status updates tolerate.
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err := services.NewRedisCache(redisURL)
		if err != nil {
			logger.Warnf("Redis unavailable, running without advisory locks: %v", err)
		} else {
			job.Locks = cache
		}
	} else {
		logger.Info("REDIS_URL not set, running without advisory locks")
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Initialize handlers
	cronHandler := handlers.NewCronHandler(job)
	webhookHandler := handlers.NewWebhookHandler(db, job)

	// Cron routes, invoked by the external scheduler with a bearer secret
	e.GET("/api/cron/check-payment-status", cronHandler.CheckPaymentStatus)
	e.GET("/api/cron/repair-activations", cronHandler.RepairActivations)

	// Payment gateway callbacks
	e.POST("/api/webhooks/xendit", webhookHandler.HandleXendit)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Infof("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
