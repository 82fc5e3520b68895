package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"membership_app_echo/internal/models"
	"membership_app_echo/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	))
	return db
}

type fakeGateway struct {
	invoices map[string]*services.XenditInvoice
	errs     map[string]error
	calls    []string
}

func (f *fakeGateway) GetInvoice(ctx context.Context, invoiceID string) (*services.XenditInvoice, error) {
	f.calls = append(f.calls, invoiceID)
	if err, ok := f.errs[invoiceID]; ok {
		return nil, err
	}
	if inv, ok := f.invoices[invoiceID]; ok {
		return inv, nil
	}
	return nil, fmt.Errorf("invoice %s not found", invoiceID)
}

type sentMail struct {
	To      string
	Subject string
	Tags    []string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendEmail(ctx context.Context, to, subject, html string, tags []string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Tags: tags})
	return nil
}

type listAdd struct {
	Email  string
	ListID string
	Attrs  services.ListAttributes
}

type fakeLists struct {
	added []listAdd
	err   error
}

func (f *fakeLists) AddUserToList(ctx context.Context, email, listID string, attrs services.ListAttributes) error {
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, listAdd{Email: email, ListID: listID, Attrs: attrs})
	return nil
}

type fakeDistributor struct {
	calls []services.SplitOptions
	err   error
}

func (f *fakeDistributor) Distribute(ctx context.Context, opts services.SplitOptions) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, opts)
	return nil
}

type fakeLocks struct {
	err error
}

func (f *fakeLocks) Obtain(ctx context.Context, key string, ttl time.Duration) (*redislock.Lock, error) {
	return nil, f.err
}

type jobFixture struct {
	db      *gorm.DB
	gateway *fakeGateway
	mailer  *fakeMailer
	lists   *fakeLists
	revenue *fakeDistributor
	job     *Job
	now     time.Time
}

func newFixture(t *testing.T) *jobFixture {
	t.Helper()
	f := &jobFixture{
		db:      newTestDB(t),
		gateway: &fakeGateway{invoices: map[string]*services.XenditInvoice{}, errs: map[string]error{}},
		mailer:  &fakeMailer{},
		lists:   &fakeLists{},
		revenue: &fakeDistributor{},
		now:     time.Now().Truncate(time.Second),
	}
	f.job = NewJob(f.db, f.gateway, f.mailer, f.lists, f.revenue)
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	f.job.Log = quiet
	f.job.Now = func() time.Time { return f.now }
	return f
}

func (f *jobFixture) seedUser(t *testing.T) models.User {
	t.Helper()
	user := models.User{
		Name:  "Budi Santoso",
		Email: fmt.Sprintf("budi+%d@example.com", time.Now().UnixNano()),
		Phone: "081234567890",
	}
	require.NoError(t, f.db.Create(&user).Error)
	return user
}

func (f *jobFixture) seedMembership(t *testing.T, duration models.MembershipDuration) models.Membership {
	t.Helper()
	m := models.Membership{
		Name:     "Gold",
		Price:    decimal.NewFromInt(500000),
		Duration: duration,
		IsActive: true,
	}
	require.NoError(t, f.db.Create(&m).Error)
	return m
}

// seedPending creates a PENDING transaction aged into the candidate window
// unless a different age is given.
func (f *jobFixture) seedPending(t *testing.T, user models.User, trxType models.TransactionType, age time.Duration, invoiceRef string, meta map[string]interface{}) models.Transaction {
	t.Helper()
	externalID := fmt.Sprintf("INV-%d-%d", user.ID, time.Now().UnixNano())
	trx := models.Transaction{
		CreatedAt:     f.now.Add(-age),
		UserID:        user.ID,
		Type:          trxType,
		Status:        models.TransactionStatusPending,
		Amount:        decimal.NewFromInt(500000),
		ExternalID:    &externalID,
		CustomerName:  user.Name,
		CustomerEmail: user.Email,
		Metadata:      meta,
	}
	if invoiceRef != "" {
		trx.Reference = &invoiceRef
	}
	require.NoError(t, f.db.Create(&trx).Error)
	return trx
}

func (f *jobFixture) reload(t *testing.T, id uint) models.Transaction {
	t.Helper()
	var trx models.Transaction
	require.NoError(t, f.db.Preload("User").First(&trx, id).Error)
	return trx
}

func TestRunPaidActivatesMembership(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	membership := f.seedMembership(t, models.MembershipDurationOneMonth)

	trx := f.seedPending(t, user, models.TransactionTypeMembership, time.Hour, "inv_1",
		map[string]interface{}{"membershipId": float64(membership.ID)})
	f.gateway.invoices["inv_1"] = &services.XenditInvoice{ID: "inv_1", Status: services.InvoiceStatusPaid}

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Paid)
	assert.Empty(t, report.Errors)
	require.Len(t, report.Details, 1)
	assert.Equal(t, "Activated", report.Details[0].Action)

	got := f.reload(t, trx.ID)
	assert.Equal(t, models.TransactionStatusSuccess, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.Contains(t, got.Notes, "[AUTO-CHECKED")
	assert.Equal(t, services.InvoiceStatusPaid, got.Metadata["gatewaySyncedStatus"])
	assert.Equal(t, true, got.Metadata["gatewayStatusChecked"])
	// metadata id is backfilled into the column
	require.NotNil(t, got.MembershipID)
	assert.Equal(t, membership.ID, *got.MembershipID)

	var grant models.UserMembership
	require.NoError(t, f.db.Where("user_id = ? AND transaction_id = ?", user.ID, trx.ID).First(&grant).Error)
	assert.True(t, grant.IsActive)
	assert.Equal(t, models.UserMembershipStatusActive, grant.Status)
	assert.WithinDuration(t, f.now.AddDate(0, 1, 0), grant.EndDate, time.Second)

	require.Len(t, f.revenue.calls, 1)
	require.NotNil(t, f.revenue.calls[0].MembershipID)
	assert.Equal(t, membership.ID, *f.revenue.calls[0].MembershipID)

	// payment success plus membership activation
	require.Len(t, f.mailer.sent, 2)
	assert.Equal(t, user.Email, f.mailer.sent[0].To)
	assert.Contains(t, f.mailer.sent[0].Tags, "auto-checked")
}

func TestRunExpiredMarksFailed(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	trx := f.seedPending(t, user, models.TransactionTypeMembership, time.Hour, "inv_exp", nil)
	f.gateway.invoices["inv_exp"] = &services.XenditInvoice{ID: "inv_exp", Status: services.InvoiceStatusExpired}

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Expired)
	require.Len(t, report.Details, 1)
	assert.Equal(t, "Marked as failed", report.Details[0].Action)

	got := f.reload(t, trx.ID)
	assert.Equal(t, models.TransactionStatusFailed, got.Status)
	require.NotNil(t, got.ExpiredAt)
	assert.Contains(t, got.Notes, "expired")
}

func TestRunFailedMarksFailedWithoutExpiry(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	trx := f.seedPending(t, user, models.TransactionTypeCourse, time.Hour, "inv_fail", nil)
	f.gateway.invoices["inv_fail"] = &services.XenditInvoice{ID: "inv_fail", Status: services.InvoiceStatusFailed}

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Expired)

	got := f.reload(t, trx.ID)
	assert.Equal(t, models.TransactionStatusFailed, got.Status)
	assert.Nil(t, got.ExpiredAt)
}

func TestRunStillPendingUnchanged(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	trx := f.seedPending(t, user, models.TransactionTypeProduct, time.Hour, "inv_wait", nil)
	f.gateway.invoices["inv_wait"] = &services.XenditInvoice{ID: "inv_wait", Status: services.InvoiceStatusPending}

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, models.TransactionStatusPending, f.reload(t, trx.ID).Status)
}

func TestRunUnrecognizedStatusLeftPending(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	trx := f.seedPending(t, user, models.TransactionTypeMembership, time.Hour, "inv_odd", nil)
	f.gateway.invoices["inv_odd"] = &services.XenditInvoice{ID: "inv_odd", Status: "ON_HOLD"}

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Unchanged)
	require.Len(t, report.Details, 1)
	assert.Equal(t, "Unrecognized status, left pending", report.Details[0].Action)
	assert.Equal(t, models.TransactionStatusPending, f.reload(t, trx.ID).Status)
}

func TestRunGatewayErrorIsIsolated(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	trx := f.seedPending(t, user, models.TransactionTypeMembership, time.Hour, "inv_down", nil)
	f.gateway.errs["inv_down"] = errors.New("connection refused")

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Unchanged)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "API error")
	assert.Equal(t, models.TransactionStatusPending, f.reload(t, trx.ID).Status)
}

func TestRunMissingReferenceSkipsGateway(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	f.seedPending(t, user, models.TransactionTypeMembership, time.Hour, "", nil)

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Unchanged)
	assert.Empty(t, f.gateway.calls)
}

func TestRunCandidateWindow(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)

	// too young, webhook still has a chance
	f.seedPending(t, user, models.TransactionTypeMembership, 2*time.Minute, "inv_young", nil)
	f.seedPending(t, user, models.TransactionTypeMembership, 4*time.Minute, "inv_almost", nil)
	// too old, dead intent
	f.seedPending(t, user, models.TransactionTypeMembership, 8*24*time.Hour, "inv_old", nil)
	// in window
	f.seedPending(t, user, models.TransactionTypeMembership, 6*time.Minute, "inv_edge", nil)
	f.seedPending(t, user, models.TransactionTypeMembership, time.Hour, "inv_mid", nil)
	// in window but never reached the gateway
	noExternal := models.Transaction{
		CreatedAt: f.now.Add(-time.Hour),
		UserID:    user.ID,
		Type:      models.TransactionTypeMembership,
		Status:    models.TransactionStatusPending,
		Amount:    decimal.NewFromInt(100000),
	}
	require.NoError(t, f.db.Create(&noExternal).Error)

	f.gateway.invoices["inv_edge"] = &services.XenditInvoice{ID: "inv_edge", Status: services.InvoiceStatusPending}
	f.gateway.invoices["inv_mid"] = &services.XenditInvoice{ID: "inv_mid", Status: services.InvoiceStatusPending}

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	// newest first, and only the two inside the window
	assert.Equal(t, []string{"inv_edge", "inv_mid"}, f.gateway.calls)
}

func TestRunNewestFirstAndCapped(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)

	for i := 0; i < BatchSize+5; i++ {
		ref := fmt.Sprintf("inv_bulk_%d", i)
		f.seedPending(t, user, models.TransactionTypeProduct, time.Hour+time.Duration(i)*time.Minute, ref, nil)
		f.gateway.invoices[ref] = &services.XenditInvoice{ID: ref, Status: services.InvoiceStatusPending}
	}

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, BatchSize, report.Total)
	require.NotEmpty(t, f.gateway.calls)
	// newest candidate first
	assert.Equal(t, "inv_bulk_0", f.gateway.calls[0])
}

func TestRunIsolatesActivationFailure(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	membership := f.seedMembership(t, models.MembershipDurationOneMonth)

	broken := f.seedPending(t, user, models.TransactionTypeMembership, 2*time.Hour, "inv_broken",
		map[string]interface{}{"membershipId": float64(999)})
	okTrx := f.seedPending(t, user, models.TransactionTypeMembership, time.Hour, "inv_ok",
		map[string]interface{}{"membershipId": float64(membership.ID)})

	f.gateway.invoices["inv_broken"] = &services.XenditInvoice{ID: "inv_broken", Status: services.InvoiceStatusPaid}
	f.gateway.invoices["inv_ok"] = &services.XenditInvoice{ID: "inv_ok", Status: services.InvoiceStatusPaid}

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Paid)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "999")

	// the failed activation keeps SUCCESS for the repair sweep
	assert.Equal(t, models.TransactionStatusSuccess, f.reload(t, broken.ID).Status)
	assert.Equal(t, models.TransactionStatusSuccess, f.reload(t, okTrx.ID).Status)

	var grants int64
	f.db.Model(&models.UserMembership{}).Count(&grants)
	assert.EqualValues(t, 1, grants)
}

func TestRunSecondPassFindsNothing(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	membership := f.seedMembership(t, models.MembershipDurationThreeMonths)

	f.seedPending(t, user, models.TransactionTypeMembership, time.Hour, "inv_once",
		map[string]interface{}{"membershipId": float64(membership.ID)})
	f.gateway.invoices["inv_once"] = &services.XenditInvoice{ID: "inv_once", Status: services.InvoiceStatusPaid}

	first, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Paid)

	second, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Total)

	var grants int64
	f.db.Model(&models.UserMembership{}).Count(&grants)
	assert.EqualValues(t, 1, grants)
}

func TestRunLockHeld(t *testing.T) {
	f := newFixture(t)
	f.job.Locks = &fakeLocks{err: redislock.ErrNotObtained}

	_, err := f.job.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestRunLockServiceDownProceeds(t *testing.T) {
	f := newFixture(t)
	f.job.Locks = &fakeLocks{err: errors.New("redis unreachable")}
	user := f.seedUser(t)
	f.seedPending(t, user, models.TransactionTypeProduct, time.Hour, "inv_nolock", nil)
	f.gateway.invoices["inv_nolock"] = &services.XenditInvoice{ID: "inv_nolock", Status: services.InvoiceStatusPending}

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
}

func TestConfirmPaymentTransitionsOnce(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	membership := f.seedMembership(t, models.MembershipDurationOneMonth)
	trx := f.seedPending(t, user, models.TransactionTypeMembership, time.Hour, "inv_hook",
		map[string]interface{}{"membershipId": float64(membership.ID)})

	loaded := f.reload(t, trx.ID)
	updated, err := f.job.ConfirmPayment(context.Background(), &loaded, services.InvoiceStatusPaid)
	require.NoError(t, err)
	assert.True(t, updated)

	again := f.reload(t, trx.ID)
	updated, err = f.job.ConfirmPayment(context.Background(), &again, services.InvoiceStatusPaid)
	require.NoError(t, err)
	assert.False(t, updated)

	var grants int64
	f.db.Model(&models.UserMembership{}).Count(&grants)
	assert.EqualValues(t, 1, grants)
}

func TestExpirePaymentRespectsTerminalStatus(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	trx := f.seedPending(t, user, models.TransactionTypeMembership, time.Hour, "inv_late", nil)

	// webhook already confirmed it
	require.NoError(t, f.db.Model(&models.Transaction{}).Where("id = ?", trx.ID).
		Update("status", models.TransactionStatusSuccess).Error)

	loaded := f.reload(t, trx.ID)
	updated, err := f.job.ExpirePayment(context.Background(), &loaded, services.InvoiceStatusExpired, true)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, models.TransactionStatusSuccess, f.reload(t, trx.ID).Status)
}
