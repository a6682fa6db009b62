package model

import "time"

// Run statuses recorded in the ledger.
const (
	RunOK       = "ok"
	RunPartial  = "partial"
	RunFailed   = "failed"
	RunCanceled = "canceled"
)

// RunRecord summarizes one batch over many symbols.
type RunRecord struct {
	RunID        string    `json:"run_id"`
	Profile      string    `json:"profile"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Symbols      int       `json:"symbols"`
	Succeeded    int       `json:"succeeded"`
	Insufficient int       `json:"insufficient"`
	Failed       int       `json:"failed"`
	Rows         int       `json:"rows"`
	Status       string    `json:"status"`
}

// Duration returns how long the batch took.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
