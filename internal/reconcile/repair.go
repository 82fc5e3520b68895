package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"membership_app_echo/internal/models"
)

// RepairName identifies the activation repair sweep
const RepairName = "repair-activations"

const (
	repairWindow    = 30 * 24 * time.Hour
	repairBatchSize = 200
)

// RepairResult summarizes one repair sweep
type RepairResult struct {
	Scanned  int      `json:"scanned"`
	Repaired int      `json:"repaired"`
	Errors   []string `json:"errors"`
}

// RepairActivations looks for SUCCESS transactions whose entitlement never
// materialized (a crash between the status update and activation) and
// completes their activation. Separate from the PENDING scan: this is the
// repair signal for the non-transactional status-update/activation pair.
func (j *Job) RepairActivations(ctx context.Context) (*RepairResult, error) {
	cutoff := j.now().Add(-repairWindow)

	var candidates []models.Transaction
	err := j.DB.WithContext(ctx).
		Preload("User").
		Where("status = ?", models.TransactionStatusSuccess).
		Where("type IN ?", []models.TransactionType{
			models.TransactionTypeMembership,
			models.TransactionTypeCourse,
			models.TransactionTypeProduct,
		}).
		Where("created_at >= ?", cutoff).
		Order("created_at desc").
		Limit(repairBatchSize).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select repair candidates: %w", err)
	}

	result := &RepairResult{Scanned: len(candidates), Errors: []string{}}
	for i := range candidates {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		trx := &candidates[i]

		missing, err := j.entitlementMissing(ctx, trx)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%d: %v", trx.ID, err))
			continue
		}
		if !missing {
			continue
		}

		if err := j.ActivatePurchase(ctx, trx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%d: %v", trx.ID, err))
			continue
		}
		result.Repaired++
	}

	j.Log.WithFields(logrus.Fields{
		"job":      RepairName,
		"scanned":  result.Scanned,
		"repaired": result.Repaired,
		"errors":   len(result.Errors),
	}).Info("activation repair sweep completed")

	return result, nil
}

// entitlementMissing reports whether a SUCCESS transaction has no matching
// entitlement row yet. Transactions whose resource cannot be resolved are
// not treated as missing; activation would skip them anyway.
func (j *Job) entitlementMissing(ctx context.Context, trx *models.Transaction) (bool, error) {
	var count int64

	switch trx.Type {
	case models.TransactionTypeMembership:
		if trx.MembershipID == nil {
			if _, ok := metaUint(trx.Metadata, "membershipId"); !ok {
				return false, nil
			}
		}
		err := j.DB.WithContext(ctx).Model(&models.UserMembership{}).
			Where("user_id = ? AND transaction_id = ?", trx.UserID, trx.ID).
			Count(&count).Error
		return count == 0, err

	case models.TransactionTypeCourse:
		if trx.CourseID == nil {
			return false, nil
		}
		err := j.DB.WithContext(ctx).Model(&models.CourseEnrollment{}).
			Where("user_id = ? AND course_id = ?", trx.UserID, *trx.CourseID).
			Count(&count).Error
		return count == 0, err

	case models.TransactionTypeProduct:
		productID, ok := metaUint(trx.Metadata, "productId")
		if !ok {
			return false, nil
		}
		err := j.DB.WithContext(ctx).Model(&models.UserProduct{}).
			Where("user_id = ? AND product_id = ?", trx.UserID, productID).
			Count(&count).Error
		return count == 0, err
	}

	return false, nil
}
