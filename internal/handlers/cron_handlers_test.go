package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"membership_app_echo/internal/models"
	"membership_app_echo/internal/reconcile"
	"membership_app_echo/internal/services"
)

func newHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Transaction{},
		&models.Membership{},
		&models.MembershipGroup{},
		&models.MembershipCourse{},
		&models.MembershipProduct{},
		&models.UserMembership{},
		&models.Course{},
		&models.CourseEnrollment{},
		&models.Product{},
		&models.UserProduct{},
		&models.Group{},
		&models.GroupMember{},
		&models.Wallet{},
		&models.WebhookEvent{},
	))
	return db
}

type stubGateway struct {
	invoices map[string]*services.XenditInvoice
}

func (s *stubGateway) GetInvoice(ctx context.Context, invoiceID string) (*services.XenditInvoice, error) {
	if inv, ok := s.invoices[invoiceID]; ok {
		return inv, nil
	}
	return nil, fmt.Errorf("invoice %s not found", invoiceID)
}

func newTestJob(t *testing.T, db *gorm.DB) *reconcile.Job {
	t.Helper()
	job := reconcile.NewJob(db, &stubGateway{invoices: map[string]*services.XenditInvoice{}}, nil, nil, nil)
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	job.Log = quiet
	return job
}

func performCron(h *CronHandler, method func(echo.Context) error, auth string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := method(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestCheckPaymentStatusRequiresSecret(t *testing.T) {
	t.Setenv("CRON_SECRET", "topsecret")
	h := NewCronHandler(newTestJob(t, newHandlerTestDB(t)))

	tests := []struct {
		name string
		auth string
	}{
		{name: "missing header", auth: ""},
		{name: "wrong token", auth: "Bearer wrong"},
		{name: "no bearer prefix", auth: "topsecret-ish"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := performCron(h, h.CheckPaymentStatus, tt.auth)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestCheckPaymentStatusUnsetSecretRejectsAll(t *testing.T) {
	t.Setenv("CRON_SECRET", "")
	h := NewCronHandler(newTestJob(t, newHandlerTestDB(t)))

	rec := performCron(h, h.CheckPaymentStatus, "Bearer ")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckPaymentStatusReturnsReport(t *testing.T) {
	t.Setenv("CRON_SECRET", "topsecret")
	h := NewCronHandler(newTestJob(t, newHandlerTestDB(t)))

	rec := performCron(h, h.CheckPaymentStatus, "Bearer topsecret")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, reconcile.JobName, body["job"])
	assert.Contains(t, body["message"], "Checked 0 transactions")

	results, ok := body["results"].(map[string]interface{})
	require.True(t, ok, "results missing from body: %v", body)
	assert.EqualValues(t, 0, results["total"])
	// arrays are always present, even when empty
	assert.NotNil(t, results["errors"])
	assert.NotNil(t, results["details"])
}

func TestRepairActivationsReturnsResult(t *testing.T) {
	t.Setenv("CRON_SECRET", "topsecret")
	h := NewCronHandler(newTestJob(t, newHandlerTestDB(t)))

	rec := performCron(h, h.RepairActivations, "Bearer topsecret")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, reconcile.RepairName, body["job"])
}
