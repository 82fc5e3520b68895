package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice statuses reported by the Xendit invoice API
const (
	InvoiceStatusPending = "PENDING"
	InvoiceStatusPaid    = "PAID"
	InvoiceStatusSettled = "SETTLED"
	InvoiceStatusExpired = "EXPIRED"
	InvoiceStatusFailed  = "FAILED"
)

// XenditInvoice is the subset of the gateway invoice payload we act on
type XenditInvoice struct {
	ID             string          `json:"id"`
	ExternalID     string          `json:"external_id"`
	Status         string          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  string          `json:"payment_method"`
	PaymentChannel string          `json:"payment_channel"`
	PaidAt         *time.Time      `json:"paid_at"`
}

// XenditService is a thin client for the Xendit invoice API. The invoice
// lookup is the authoritative payment status used by the reconciliation job.
type XenditService struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewXenditService builds a client from XENDIT_SECRET_KEY / XENDIT_BASE_URL
func NewXenditService() *XenditService {
	url := os.Getenv("XENDIT_BASE_URL")
	if url == "" {
		url = "https://api.xendit.co"
	}
	return &XenditService{
		baseURL:   url,
		secretKey: os.Getenv("XENDIT_SECRET_KEY"),
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// NewXenditServiceWithBase builds a client pointed at a specific host,
// used by tests.
func NewXenditServiceWithBase(baseURL, secretKey string) *XenditService {
	return &XenditService{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// GetInvoice fetches the current state of an invoice by its gateway id
func (s *XenditService) GetInvoice(ctx context.Context, invoiceID string) (*XenditInvoice, error) {
	if invoiceID == "" {
		return nil, fmt.Errorf("invoice id is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v2/invoices/%s", s.baseURL, invoiceID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Xendit authenticates with the secret key as basic-auth username
	req.SetBasicAuth(s.secretKey, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice %s: %w", invoiceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("invoice %s lookup failed with status %d: %s", invoiceID, resp.StatusCode, string(body))
	}

	var invoice XenditInvoice
	if err := json.NewDecoder(resp.Body).Decode(&invoice); err != nil {
		return nil, fmt.Errorf("failed to decode invoice %s: %w", invoiceID, err)
	}

	return &invoice, nil
}
