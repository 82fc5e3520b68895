package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"membership_app_echo/internal/models"
)

func newRevenueTestDB(t *testing.T) *gorm.DB {
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
		&models.Course{},
		&models.Product{},
		&models.Wallet{},
	))
	return db
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestCalculateSplitWithoutAffiliate(t *testing.T) {
	svc := NewRevenueService(newRevenueTestDB(t))

	split := svc.CalculateSplit(SplitOptions{
		Amount: dec(1000000),
		Type:   models.TransactionTypeMembership,
	})

	assert.True(t, split.Affiliate.IsZero())
	assert.True(t, split.Company.Equal(dec(150000)), "company = %s", split.Company)
	assert.True(t, split.Founder.Equal(dec(510000)), "founder = %s", split.Founder)
	assert.True(t, split.CoFounder.Equal(dec(340000)), "co-founder = %s", split.CoFounder)

	sum := split.Affiliate.Add(split.Company).Add(split.Founder).Add(split.CoFounder)
	assert.True(t, sum.Equal(split.Total))
}

func TestCalculateSplitDefaultAffiliatePercentage(t *testing.T) {
	svc := NewRevenueService(newRevenueTestDB(t))
	affiliateID := uint(9)

	split := svc.CalculateSplit(SplitOptions{
		Amount:      dec(1000000),
		Type:        models.TransactionTypeMembership,
		AffiliateID: &affiliateID,
	})

	assert.True(t, split.Affiliate.Equal(dec(300000)), "affiliate = %s", split.Affiliate)
	assert.True(t, split.Company.Equal(dec(105000)), "company = %s", split.Company)
	assert.True(t, split.Founder.Equal(dec(357000)), "founder = %s", split.Founder)
	assert.True(t, split.CoFounder.Equal(dec(238000)), "co-founder = %s", split.CoFounder)
}

func TestCalculateSplitConfiguredRates(t *testing.T) {
	db := newRevenueTestDB(t)
	svc := NewRevenueService(db)
	affiliateID := uint(9)

	percentage := models.Membership{
		Name:                    "Gold",
		CommissionType:          models.CommissionTypePercentage,
		AffiliateCommissionRate: dec(50),
	}
	require.NoError(t, db.Create(&percentage).Error)

	flat := models.Membership{
		Name:                    "Silver",
		CommissionType:          models.CommissionTypeFlat,
		AffiliateCommissionRate: dec(25000),
	}
	require.NoError(t, db.Create(&flat).Error)

	pctSplit := svc.CalculateSplit(SplitOptions{
		Amount:       dec(100000),
		Type:         models.TransactionTypeMembership,
		AffiliateID:  &affiliateID,
		MembershipID: &percentage.ID,
	})
	assert.True(t, pctSplit.Affiliate.Equal(dec(50000)), "affiliate = %s", pctSplit.Affiliate)

	flatSplit := svc.CalculateSplit(SplitOptions{
		Amount:       dec(100000),
		Type:         models.TransactionTypeMembership,
		AffiliateID:  &affiliateID,
		MembershipID: &flat.ID,
	})
	assert.True(t, flatSplit.Affiliate.Equal(dec(25000)), "affiliate = %s", flatSplit.Affiliate)
}

func TestDistributeCreditsWalletsAndLedger(t *testing.T) {
	db := newRevenueTestDB(t)
	svc := NewRevenueService(db)

	admin := models.User{Name: "Admin", Email: "admin@example.com", UserType: models.UserTypeAdmin}
	founder := models.User{Name: "Founder", Email: "founder@example.com", IsFounder: true}
	coFounder := models.User{Name: "CoFounder", Email: "cofounder@example.com", IsCoFounder: true}
	affiliate := models.User{Name: "Affiliate", Email: "aff@example.com", UserType: models.UserTypeAffiliate}
	for _, u := range []*models.User{&admin, &founder, &coFounder, &affiliate} {
		require.NoError(t, db.Create(u).Error)
	}

	sourceID := uint(77)
	opts := SplitOptions{
		Amount:        dec(1000000),
		Type:          models.TransactionTypeMembership,
		AffiliateID:   &affiliate.ID,
		TransactionID: &sourceID,
	}
	require.NoError(t, svc.Distribute(context.Background(), opts))

	walletOf := func(userID uint) models.Wallet {
		var w models.Wallet
		require.NoError(t, db.Where("user_id = ?", userID).First(&w).Error)
		return w
	}

	assert.True(t, walletOf(affiliate.ID).Balance.Equal(dec(300000)))
	assert.True(t, walletOf(admin.ID).Balance.Equal(dec(105000)))
	assert.True(t, walletOf(founder.ID).Balance.Equal(dec(357000)))
	assert.True(t, walletOf(coFounder.ID).Balance.Equal(dec(238000)))

	var ledger models.Transaction
	require.NoError(t, db.Where("user_id = ? AND type = ?", affiliate.ID, models.TransactionTypeCommission).
		First(&ledger).Error)
	assert.Equal(t, models.TransactionStatusSuccess, ledger.Status)
	assert.True(t, ledger.Amount.Equal(dec(300000)))
	require.NotNil(t, ledger.ExternalID)
	assert.True(t, strings.HasPrefix(*ledger.ExternalID, "COMM-"))
	assert.EqualValues(t, 77, ledger.Metadata["sourceTransactionId"])

	// a second distribution accumulates instead of resetting
	require.NoError(t, svc.Distribute(context.Background(), opts))
	assert.True(t, walletOf(affiliate.ID).Balance.Equal(dec(600000)))
	assert.True(t, walletOf(affiliate.ID).TotalEarnings.Equal(dec(600000)))
}

func TestDistributeWithoutConfiguredRoles(t *testing.T) {
	db := newRevenueTestDB(t)
	svc := NewRevenueService(db)

	// no admin, founder or co-founder exists; distribution must not fail
	require.NoError(t, svc.Distribute(context.Background(), SplitOptions{
		Amount: dec(500000),
		Type:   models.TransactionTypeProduct,
	}))

	var wallets int64
	db.Model(&models.Wallet{}).Count(&wallets)
	assert.EqualValues(t, 0, wallets)
}
