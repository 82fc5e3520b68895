package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"membership_app_echo/internal/models"
	"membership_app_echo/internal/services"
)

// JobName identifies the reconciliation job in reports and lock keys
const JobName = "check-payment-status"

const (
	// Candidates younger than MinAge are left for the webhook to resolve;
	// older than MaxAge are dead intents not worth gateway calls.
	MinAge = 5 * time.Minute
	MaxAge = 7 * 24 * time.Hour

	// BatchSize bounds one run against host execution-time limits
	BatchSize = 50

	lockKey = "cron:" + JobName
	lockTTL = 10 * time.Minute
)

// ErrRunInProgress is returned when the advisory lock is held by another
// invocation. The caller treats it as "nothing to do", not a failure.
var ErrRunInProgress = errors.New("another reconciliation run is in progress")

// Gateway is the payment gateway invoice lookup
type Gateway interface {
	GetInvoice(ctx context.Context, invoiceID string) (*services.XenditInvoice, error)
}

// Mailer sends transactional email
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, html string, tags []string) error
}

// ListSyncer subscribes users to mailing lists
type ListSyncer interface {
	AddUserToList(ctx context.Context, email, listID string, attrs services.ListAttributes) error
}

// Distributor performs revenue distribution for a confirmed payment
type Distributor interface {
	Distribute(ctx context.Context, opts services.SplitOptions) error
}

// LockClient takes a best-effort advisory lock. Optional: correctness never
// depends on it, idempotent writes do the real work.
type LockClient interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (*redislock.Lock, error)
}

// Job reconciles PENDING transactions against the payment gateway and fans
// out activation side effects for the ones that turn out paid.
type Job struct {
	DB      *gorm.DB
	Gateway Gateway
	Mailer  Mailer
	Lists   ListSyncer
	Revenue Distributor
	Locks   LockClient
	Log     *logrus.Logger

	// Now is swappable for tests; defaults to time.Now
	Now func() time.Time
}

// NewJob wires a reconciliation job with its collaborators
func NewJob(db *gorm.DB, gateway Gateway, mailer Mailer, lists ListSyncer, revenue Distributor) *Job {
	return &Job{
		DB:      db,
		Gateway: gateway,
		Mailer:  mailer,
		Lists:   lists,
		Revenue: revenue,
		Log:     services.GetLogger(),
		Now:     time.Now,
	}
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

// Run executes one reconciliation pass. Individual candidate failures are
// recorded in the report and never abort the loop; only candidate selection
// itself can fail the run.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	if j.Locks != nil {
		lock, err := j.Locks.Obtain(ctx, lockKey, lockTTL)
		if err == redislock.ErrNotObtained {
			return nil, ErrRunInProgress
		}
		if err == nil {
			defer lock.Release(ctx)
		} else {
			// Lock service being down must not stop reconciliation
			j.Log.WithField("job", JobName).Warnf("advisory lock unavailable: %v", err)
		}
	}

	candidates, err := j.selectCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select candidate transactions: %w", err)
	}

	j.Log.WithFields(logrus.Fields{
		"job":        JobName,
		"candidates": len(candidates),
	}).Info("starting reconciliation run")

	report := NewReport(len(candidates))
	for i := range candidates {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		j.processCandidate(ctx, &candidates[i], report)
	}

	j.Log.WithFields(logrus.Fields{
		"job":       JobName,
		"updated":   report.Updated,
		"paid":      report.Paid,
		"expired":   report.Expired,
		"failed":    report.Failed,
		"unchanged": report.Unchanged,
		"errors":    len(report.Errors),
	}).Info("reconciliation run completed")

	return report, nil
}

// selectCandidates finds PENDING transactions inside the age window that
// have a gateway external id, newest first, capped at BatchSize.
func (j *Job) selectCandidates(ctx context.Context) ([]models.Transaction, error) {
	now := j.now()
	var candidates []models.Transaction
	err := j.DB.WithContext(ctx).
		Preload("User").
		Where("status = ?", models.TransactionStatusPending).
		Where("created_at >= ? AND created_at <= ?", now.Add(-MaxAge), now.Add(-MinAge)).
		Where("external_id IS NOT NULL").
		Order("created_at desc").
		Limit(BatchSize).
		Find(&candidates).Error
	return candidates, err
}

func (j *Job) processCandidate(ctx context.Context, trx *models.Transaction, report *Report) {
	log := j.Log.WithFields(logrus.Fields{"job": JobName, "transactionId": trx.ID})

	// Without the invoice reference there is nothing to ask the gateway
	if trx.Reference == nil || *trx.Reference == "" {
		log.Debug("no invoice reference, skipping gateway check")
		report.Unchanged++
		return
	}

	invoice, err := j.Gateway.GetInvoice(ctx, *trx.Reference)
	if err != nil {
		log.Warnf("gateway query failed: %v", err)
		report.Errors = append(report.Errors, fmt.Sprintf("%d: API error - %v", trx.ID, err))
		report.Unchanged++
		return
	}

	switch invoice.Status {
	case services.InvoiceStatusPaid, services.InvoiceStatusSettled:
		updated, err := j.markPaid(ctx, trx, invoice.Status)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%d: %v", trx.ID, err))
			return
		}
		if !updated {
			// Another invocation or the webhook already finalized it
			report.Unchanged++
			return
		}

		if err := j.ActivatePurchase(ctx, trx); err != nil {
			// Status stays SUCCESS; the repair sweep completes activation later
			log.Errorf("activation failed: %v", err)
			report.Errors = append(report.Errors, fmt.Sprintf("%d: %v", trx.ID, err))
			return
		}

		report.Updated++
		report.Paid++
		report.Details = append(report.Details, Detail{
			TransactionID: trx.ID,
			Email:         trx.CustomerEmail,
			Status:        invoice.Status,
			Action:        "Activated",
		})

	case services.InvoiceStatusExpired:
		updated, err := j.markFailed(ctx, trx, invoice.Status, true)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%d: %v", trx.ID, err))
			return
		}
		if !updated {
			report.Unchanged++
			return
		}
		report.Updated++
		report.Expired++
		report.Details = append(report.Details, Detail{
			TransactionID: trx.ID,
			Email:         trx.CustomerEmail,
			Status:        invoice.Status,
			Action:        "Marked as failed",
		})

	case services.InvoiceStatusFailed:
		updated, err := j.markFailed(ctx, trx, invoice.Status, false)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%d: %v", trx.ID, err))
			return
		}
		if !updated {
			report.Unchanged++
			return
		}
		report.Updated++
		report.Failed++
		report.Details = append(report.Details, Detail{
			TransactionID: trx.ID,
			Email:         trx.CustomerEmail,
			Status:        invoice.Status,
			Action:        "Marked as failed",
		})

	case services.InvoiceStatusPending:
		report.Unchanged++

	default:
		// A status we have never seen from the provider. Left pending, but
		// flagged so operators can tell it apart from ordinary waiting.
		log.WithField("gatewayStatus", invoice.Status).Warn("unrecognized gateway status")
		report.Unchanged++
		report.Details = append(report.Details, Detail{
			TransactionID: trx.ID,
			Email:         trx.CustomerEmail,
			Status:        invoice.Status,
			Action:        "Unrecognized status, left pending",
		})
	}
}

// ConfirmPayment finalizes a transaction the gateway reports as paid and
// runs activation. Used by the webhook path so it shares the job's guarded
// update and idempotent activation. Returns whether this call performed the
// PENDING -> SUCCESS transition.
func (j *Job) ConfirmPayment(ctx context.Context, trx *models.Transaction, gatewayStatus string) (bool, error) {
	updated, err := j.markPaid(ctx, trx, gatewayStatus)
	if err != nil || !updated {
		return false, err
	}
	if err := j.ActivatePurchase(ctx, trx); err != nil {
		// SUCCESS stands; the repair sweep finishes activation
		return true, err
	}
	return true, nil
}

// ExpirePayment marks a transaction the gateway reports as expired or failed
func (j *Job) ExpirePayment(ctx context.Context, trx *models.Transaction, gatewayStatus string, expired bool) (bool, error) {
	return j.markFailed(ctx, trx, gatewayStatus, expired)
}

// markPaid flips a PENDING transaction to SUCCESS. The conditional update
// makes the terminal transition exactly-once under concurrent invocations:
// zero rows affected means someone else already finalized the transaction.
func (j *Job) markPaid(ctx context.Context, trx *models.Transaction, gatewayStatus string) (bool, error) {
	now := j.now()
	res := j.DB.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", trx.ID, models.TransactionStatusPending).
		Updates(models.Transaction{
			Status:   models.TransactionStatusSuccess,
			PaidAt:   &now,
			Notes:    fmt.Sprintf("[AUTO-CHECKED: %s]\nStatus synced from gateway API. Original webhook may have failed.", now.Format(time.RFC3339)),
			Metadata: j.annotateMetadata(trx, gatewayStatus, now),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark transaction paid: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	trx.Status = models.TransactionStatusSuccess
	trx.PaidAt = &now
	return true, nil
}

// markFailed flips a PENDING transaction to FAILED, stamping expiredAt for
// gateway-side expiry.
func (j *Job) markFailed(ctx context.Context, trx *models.Transaction, gatewayStatus string, expired bool) (bool, error) {
	now := j.now()
	note := fmt.Sprintf("[AUTO-CHECKED: %s]\nPayment failed on gateway.", now.Format(time.RFC3339))
	updates := models.Transaction{
		Status:   models.TransactionStatusFailed,
		Notes:    note,
		Metadata: j.annotateMetadata(trx, gatewayStatus, now),
	}
	if expired {
		updates.Notes = fmt.Sprintf("[AUTO-CHECKED: %s]\nPayment expired on gateway.", now.Format(time.RFC3339))
		updates.ExpiredAt = &now
	}

	res := j.DB.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", trx.ID, models.TransactionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark transaction failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	trx.Status = models.TransactionStatusFailed
	return true, nil
}

// annotateMetadata appends the synced gateway status to the transaction's
// metadata bag without dropping what checkout put there.
func (j *Job) annotateMetadata(trx *models.Transaction, gatewayStatus string, now time.Time) map[string]interface{} {
	meta := make(map[string]interface{}, len(trx.Metadata)+3)
	for k, v := range trx.Metadata {
		meta[k] = v
	}
	meta["gatewayStatusChecked"] = true
	meta["gatewayStatusCheckedAt"] = now.Format(time.RFC3339)
	meta["gatewaySyncedStatus"] = gatewayStatus
	return meta
}
