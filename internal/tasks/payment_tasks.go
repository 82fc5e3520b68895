package tasks

import (
	"context"

	"gorm.io/gorm"

	"membership_app_echo/internal/models"
	"membership_app_echo/internal/reconcile"
)

// Task names as stored in scheduled_tasks.task_name
const (
	CheckPaymentStatusTaskID = "check_payment_status"
	RepairActivationsTaskID  = "repair_activations"
)

// CheckPaymentStatusTaskDef runs the payment-status reconciliation job from
// the worker's schedule, so deployments without an external cron host still
// sync against the gateway.
type CheckPaymentStatusTaskDef struct {
	Job *reconcile.Job
}

// TaskID returns the unique identifier for this task
func (t *CheckPaymentStatusTaskDef) TaskID() string {
	return CheckPaymentStatusTaskID
}

// HandleExecution runs one reconciliation pass
func (t *CheckPaymentStatusTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	report, err := t.Job.Run(ctx)
	if err == reconcile.ErrRunInProgress {
		return map[string]interface{}{
			"status":  "skipped",
			"message": err.Error(),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"status":    "success",
		"total":     report.Total,
		"updated":   report.Updated,
		"paid":      report.Paid,
		"expired":   report.Expired,
		"failed":    report.Failed,
		"unchanged": report.Unchanged,
		"errors":    report.Errors,
		"message":   report.Message(),
	}, nil
}

// RepairActivationsTaskDef sweeps for SUCCESS transactions that never got
// their entitlement and completes activation.
type RepairActivationsTaskDef struct {
	Job *reconcile.Job
}

// TaskID returns the unique identifier for this task
func (t *RepairActivationsTaskDef) TaskID() string {
	return RepairActivationsTaskID
}

// HandleExecution runs one repair sweep
func (t *RepairActivationsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	result, err := t.Job.RepairActivations(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"status":   "success",
		"scanned":  result.Scanned,
		"repaired": result.Repaired,
		"errors":   result.Errors,
	}, nil
}
