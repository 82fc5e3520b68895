package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"membership_app_echo/internal/models"
	"membership_app_echo/internal/reconcile"
	"membership_app_echo/internal/services"
)

// webhookPayload is the subset of the gateway callback we act on
type webhookPayload struct {
	ID             string `json:"id"`
	Event          string `json:"event"`
	ExternalID     string `json:"external_id"`
	Status         string `json:"status"`
	PaymentMethod  string `json:"payment_method"`
	PaymentChannel string `json:"payment_channel"`
}

// WebhookHandler receives gateway payment callbacks. It shares the
// reconciliation job's guarded status update and activation path, so webhook
// and cron can never double-activate the same transaction.
type WebhookHandler struct {
	db    *gorm.DB
	job   *reconcile.Job
	token string
}

// NewWebhookHandler creates a webhook handler secured by the gateway
// callback token.
func NewWebhookHandler(db *gorm.DB, job *reconcile.Job) *WebhookHandler {
	return &WebhookHandler{
		db:    db,
		job:   job,
		token: os.Getenv("XENDIT_WEBHOOK_TOKEN"),
	}
}

// HandleXendit processes one invoice callback from Xendit
func (h *WebhookHandler) HandleXendit(c echo.Context) error {
	log := services.GetLogger()

	if h.token == "" || c.Request().Header.Get("x-callback-token") != h.token {
		log.Warn("webhook rejected: invalid callback token")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unreadable body"})
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
	}

	// Audit first, before any processing can fail
	event := models.WebhookEvent{
		PaymentGateway: models.PaymentGatewayXendit,
		Event:          payload.Event,
		ExternalID:     payload.ExternalID,
		Payload:        body,
	}
	if err := h.db.Create(&event).Error; err != nil {
		log.Errorf("failed to store webhook event: %v", err)
	}

	ctx := c.Request().Context()

	var trx models.Transaction
	err = h.db.WithContext(ctx).Preload("User").
		Where("external_id = ?", payload.ExternalID).
		First(&trx).Error
	if err != nil {
		log.Warnf("webhook for unknown external id %s", payload.ExternalID)
		// 200 so the gateway does not keep retrying a callback we can
		// never match; the audit row keeps it replayable.
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	if payload.PaymentMethod != "" || payload.PaymentChannel != "" {
		method := payload.PaymentMethod
		if method == "" {
			method = payload.PaymentChannel
		}
		h.db.WithContext(ctx).Model(&trx).Update("payment_method", method)
	}

	switch payload.Status {
	case services.InvoiceStatusPaid, services.InvoiceStatusSettled:
		if _, err := h.job.ConfirmPayment(ctx, &trx, payload.Status); err != nil {
			log.Errorf("webhook activation failed for transaction %d: %v", trx.ID, err)
		}
	case services.InvoiceStatusExpired:
		if _, err := h.job.ExpirePayment(ctx, &trx, payload.Status, true); err != nil {
			log.Errorf("webhook expiry failed for transaction %d: %v", trx.ID, err)
		}
	case services.InvoiceStatusFailed:
		if _, err := h.job.ExpirePayment(ctx, &trx, payload.Status, false); err != nil {
			log.Errorf("webhook failure update failed for transaction %d: %v", trx.ID, err)
		}
	}

	if event.ID != 0 {
		h.db.WithContext(ctx).Model(&event).Update("processed", true)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "received"})
}
