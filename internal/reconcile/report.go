package reconcile

import "fmt"

// Detail records the outcome for one candidate transaction in a run
type Detail struct {
	TransactionID uint   `json:"transactionId"`
	Email         string `json:"email"`
	Status        string `json:"status"`
	Action        string `json:"action"`
}

// Report is the ephemeral summary of one reconciliation run. It exists only
// for the duration of the response and is never persisted.
type Report struct {
	Total     int      `json:"total"`
	Updated   int      `json:"updated"`
	Paid      int      `json:"paid"`
	Expired   int      `json:"expired"`
	Failed    int      `json:"failed"`
	Unchanged int      `json:"unchanged"`
	Errors    []string `json:"errors"`
	Details   []Detail `json:"details"`
}

// NewReport returns an empty report with non-nil slices so the JSON body
// always carries errors/details arrays.
func NewReport(total int) *Report {
	return &Report{
		Total:   total,
		Errors:  []string{},
		Details: []Detail{},
	}
}

// Message summarizes the run for the response body and logs
func (r *Report) Message() string {
	return fmt.Sprintf("Checked %d transactions: %d paid, %d expired, %d failed, %d unchanged",
		r.Total, r.Paid, r.Expired, r.Failed, r.Unchanged)
}
