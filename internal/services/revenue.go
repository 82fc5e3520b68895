package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"membership_app_echo/internal/models"
)

// Split percentages: affiliate commission comes from the item's own
// configuration, then 15% of the remainder goes to the company wallet and
// the rest is split 60/40 between founder and co-founder.
var (
	companyFeeRate      = decimal.NewFromFloat(0.15)
	founderShareRate    = decimal.NewFromFloat(0.60)
	defaultAffiliatePct = decimal.NewFromInt(30)
	oneHundred          = decimal.NewFromInt(100)
)

// SplitOptions identifies the transaction whose revenue is being distributed
type SplitOptions struct {
	Amount        decimal.Decimal
	Type          models.TransactionType
	AffiliateID   *uint
	MembershipID  *uint
	CourseID      *uint
	ProductID     *uint
	TransactionID *uint
}

// SplitResult is the computed distribution of one transaction's amount
type SplitResult struct {
	Affiliate decimal.Decimal
	Company   decimal.Decimal
	Founder   decimal.Decimal
	CoFounder decimal.Decimal
	Total     decimal.Decimal
	Breakdown []string
}

// RevenueService distributes confirmed payments into wallets and the
// commission ledger.
type RevenueService struct {
	db *gorm.DB
}

// NewRevenueService creates a revenue distribution service
func NewRevenueService(db *gorm.DB) *RevenueService {
	return &RevenueService{db: db}
}

// commissionConfig returns the affiliate commission type and rate configured
// on the purchased item, falling back to 30% when unconfigured.
func (s *RevenueService) commissionConfig(opts SplitOptions) (models.CommissionType, decimal.Decimal) {
	commissionType := models.CommissionTypePercentage
	rate := defaultAffiliatePct

	switch {
	case opts.Type == models.TransactionTypeMembership && opts.MembershipID != nil:
		var m models.Membership
		if err := s.db.First(&m, *opts.MembershipID).Error; err == nil {
			if m.CommissionType != "" {
				commissionType = m.CommissionType
			}
			if !m.AffiliateCommissionRate.IsZero() {
				rate = m.AffiliateCommissionRate
			}
		}
	case opts.Type == models.TransactionTypeCourse && opts.CourseID != nil:
		var c models.Course
		if err := s.db.First(&c, *opts.CourseID).Error; err == nil {
			if c.CommissionType != "" {
				commissionType = c.CommissionType
			}
			if !c.AffiliateCommissionRate.IsZero() {
				rate = c.AffiliateCommissionRate
			}
		}
	case opts.Type == models.TransactionTypeProduct && opts.ProductID != nil:
		var p models.Product
		if err := s.db.First(&p, *opts.ProductID).Error; err == nil {
			if p.CommissionType != "" {
				commissionType = p.CommissionType
			}
			if !p.AffiliateCommissionRate.IsZero() {
				rate = p.AffiliateCommissionRate
			}
		}
	}

	return commissionType, rate
}

// CalculateSplit computes the distribution without writing anything
func (s *RevenueService) CalculateSplit(opts SplitOptions) SplitResult {
	result := SplitResult{Total: opts.Amount}
	remaining := opts.Amount

	if opts.AffiliateID != nil {
		commissionType, rate := s.commissionConfig(opts)
		if commissionType == models.CommissionTypeFlat {
			result.Affiliate = rate
			result.Breakdown = append(result.Breakdown, fmt.Sprintf("Affiliate (flat): %s", rate.StringFixed(2)))
		} else {
			result.Affiliate = opts.Amount.Mul(rate).Div(oneHundred)
			result.Breakdown = append(result.Breakdown, fmt.Sprintf("Affiliate (%s%%): %s", rate.StringFixed(0), result.Affiliate.StringFixed(2)))
		}
		remaining = remaining.Sub(result.Affiliate)
	}

	result.Company = remaining.Mul(companyFeeRate)
	remaining = remaining.Sub(result.Company)
	result.Breakdown = append(result.Breakdown, fmt.Sprintf("Company (15%%): %s", result.Company.StringFixed(2)))

	result.Founder = remaining.Mul(founderShareRate)
	result.CoFounder = remaining.Sub(result.Founder)
	result.Breakdown = append(result.Breakdown,
		fmt.Sprintf("Founder (60%%): %s", result.Founder.StringFixed(2)),
		fmt.Sprintf("Co-Founder (40%%): %s", result.CoFounder.StringFixed(2)))

	return result
}

// Distribute computes the split and credits the affiliate, company, founder
// and co-founder wallets in one database transaction. Affiliate credits also
// get a COMMISSION ledger entry.
func (s *RevenueService) Distribute(ctx context.Context, opts SplitOptions) error {
	split := s.CalculateSplit(opts)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if opts.AffiliateID != nil && split.Affiliate.IsPositive() {
			if err := creditWallet(tx, *opts.AffiliateID, split.Affiliate); err != nil {
				return fmt.Errorf("failed to credit affiliate wallet: %w", err)
			}

			commissionRef := fmt.Sprintf("COMM-%s", uuid.NewString())
			ledger := models.Transaction{
				UserID:      *opts.AffiliateID,
				Type:        models.TransactionTypeCommission,
				Status:      models.TransactionStatusSuccess,
				Amount:      split.Affiliate,
				ExternalID:  &commissionRef,
				Description: fmt.Sprintf("Affiliate commission - %s", opts.Type),
			}
			if opts.TransactionID != nil {
				ledger.Metadata = map[string]interface{}{"sourceTransactionId": *opts.TransactionID}
			}
			if err := tx.Create(&ledger).Error; err != nil {
				return fmt.Errorf("failed to create commission ledger entry: %w", err)
			}
		}

		if err := creditRoleWallet(tx, split.Company, "user_type = ?", models.UserTypeAdmin); err != nil {
			return err
		}
		if err := creditRoleWallet(tx, split.Founder, "is_founder = ?", true); err != nil {
			return err
		}
		if err := creditRoleWallet(tx, split.CoFounder, "is_co_founder = ?", true); err != nil {
			return err
		}

		return nil
	})
}

// creditRoleWallet credits the first user matching the role query, skipping
// silently when no such user exists (e.g. no co-founder configured).
func creditRoleWallet(tx *gorm.DB, amount decimal.Decimal, query string, arg interface{}) error {
	if !amount.IsPositive() {
		return nil
	}
	var user models.User
	if err := tx.Where(query, arg).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}
	return creditWallet(tx, user.ID, amount)
}

func creditWallet(tx *gorm.DB, userID uint, amount decimal.Decimal) error {
	var wallet models.Wallet
	err := tx.Where("user_id = ?", userID).First(&wallet).Error
	if err == gorm.ErrRecordNotFound {
		wallet = models.Wallet{
			UserID:        userID,
			Balance:       amount,
			TotalEarnings: amount,
		}
		return tx.Create(&wallet).Error
	}
	if err != nil {
		return err
	}

	return tx.Model(&wallet).Updates(map[string]interface{}{
		"balance":        wallet.Balance.Add(amount),
		"total_earnings": wallet.TotalEarnings.Add(amount),
	}).Error
}
