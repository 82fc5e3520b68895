package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ListAttributes carries the subscriber profile attached when syncing a user
// to a mailing list after a purchase.
type ListAttributes struct {
	Name           string `json:"name"`
	Phone          string `json:"phone,omitempty"`
	PurchaseType   string `json:"purchase_type,omitempty"`
	PurchaseItem   string `json:"purchase_item,omitempty"`
	PurchaseDate   string `json:"purchase_date,omitempty"`
	PurchaseAmount string `json:"purchase_amount,omitempty"`
}

// MailketingService is a thin client for the Mailketing API: transactional
// email sends and mailing-list subscriber management.
type MailketingService struct {
	baseURL   string
	apiToken  string
	fromEmail string
	fromName  string
	client    *http.Client
}

// NewMailketingService builds a client from MAILKETING_* env vars
func NewMailketingService() *MailketingService {
	base := os.Getenv("MAILKETING_API_URL")
	if base == "" {
		base = "https://api.mailketing.co.id/api/v1"
	}
	return &MailketingService{
		baseURL:   base,
		apiToken:  os.Getenv("MAILKETING_API_KEY"),
		fromEmail: os.Getenv("MAILKETING_FROM_EMAIL"),
		fromName:  os.Getenv("MAILKETING_FROM_NAME"),
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// NewMailketingServiceWithBase builds a client pointed at a specific host,
// used by tests.
func NewMailketingServiceWithBase(baseURL, apiToken string) *MailketingService {
	return &MailketingService{
		baseURL:  baseURL,
		apiToken: apiToken,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// SendEmail sends a transactional email. The API takes form-urlencoded
// fields with the api_token inline.
func (s *MailketingService) SendEmail(ctx context.Context, to, subject, html string, tags []string) error {
	if s.apiToken == "" {
		return fmt.Errorf("mailketing api token not configured")
	}

	form := url.Values{}
	form.Set("api_token", s.apiToken)
	form.Set("from_email", s.fromEmail)
	form.Set("from_name", s.fromName)
	form.Set("recipient", to)
	form.Set("subject", subject)
	form.Set("content", html)
	if len(tags) > 0 {
		form.Set("tags", strings.Join(tags, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/send", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return s.do(req)
}

// AddUserToList subscribes an email address to a mailing list
func (s *MailketingService) AddUserToList(ctx context.Context, email, listID string, attrs ListAttributes) error {
	if s.apiToken == "" {
		return fmt.Errorf("mailketing api token not configured")
	}

	payload := map[string]interface{}{
		"api_token": s.apiToken,
		"email":     email,
		"name":      attrs.Name,
		"phone":     attrs.Phone,
		"custom_fields": map[string]string{
			"purchase_type":   attrs.PurchaseType,
			"purchase_item":   attrs.PurchaseItem,
			"purchase_date":   attrs.PurchaseDate,
			"purchase_amount": attrs.PurchaseAmount,
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/lists/%s/subscribers", s.baseURL, listID), bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return s.do(req)
}

func (s *MailketingService) do(req *http.Request) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
