package tasks

import "membership_app_echo/internal/reconcile"

// DefineTasks registers all available tasks. The payment tasks close over a
// fully wired reconciliation job.
func DefineTasks(job *reconcile.Job) {
	// Register general tasks
	RegisterHandler(LogInfoTask.TaskID(), LogInfoTask.HandleExecution)

	// Register payment tasks
	checkTask := &CheckPaymentStatusTaskDef{Job: job}
	RegisterHandler(checkTask.TaskID(), checkTask.HandleExecution)

	repairTask := &RepairActivationsTaskDef{Job: job}
	RegisterHandler(repairTask.TaskID(), repairTask.HandleExecution)
}
