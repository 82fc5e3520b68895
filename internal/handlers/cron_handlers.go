package handlers

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"membership_app_echo/internal/reconcile"
	"membership_app_echo/internal/services"
)

// CronHandler exposes the scheduled jobs over authenticated HTTP triggers
// for deployments whose scheduler is an external cron host.
type CronHandler struct {
	job    *reconcile.Job
	secret string
}

// NewCronHandler creates a cron handler secured by CRON_SECRET
func NewCronHandler(job *reconcile.Job) *CronHandler {
	return &CronHandler{
		job:    job,
		secret: os.Getenv("CRON_SECRET"),
	}
}

// authorized compares the bearer token against the configured secret.
// An unset secret rejects everything rather than allowing everything.
func (h *CronHandler) authorized(c echo.Context) bool {
	if h.secret == "" {
		return false
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	return token == h.secret
}

// CheckPaymentStatus runs one reconciliation pass and returns its report
func (h *CronHandler) CheckPaymentStatus(c echo.Context) error {
	if !h.authorized(c) {
		services.GetLogger().Warn("unauthorized access to check-payment-status")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	report, err := h.job.Run(c.Request().Context())
	if err == reconcile.ErrRunInProgress {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success":   true,
			"timestamp": time.Now().Format(time.RFC3339),
			"job":       reconcile.JobName,
			"message":   "Skipped: another reconciliation run is in progress",
		})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success":   false,
			"error":     err.Error(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"timestamp": time.Now().Format(time.RFC3339),
		"job":       reconcile.JobName,
		"results":   report,
		"message":   report.Message(),
	})
}

// RepairActivations runs the SUCCESS-without-entitlement sweep
func (h *CronHandler) RepairActivations(c echo.Context) error {
	if !h.authorized(c) {
		services.GetLogger().Warn("unauthorized access to repair-activations")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	result, err := h.job.RepairActivations(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success":   false,
			"error":     err.Error(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"timestamp": time.Now().Format(time.RFC3339),
		"job":       reconcile.RepairName,
		"results":   result,
	})
}
