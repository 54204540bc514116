package model

import "time"

// RunStatus represents the state of an import run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// ImportRun records one import invocation for a price date.
type ImportRun struct {
	ID             string     `json:"id"`
	PriceDate      time.Time  `json:"price_date"`
	Source         string     `json:"source"`
	Status         RunStatus  `json:"status"`
	ChainsImported int        `json:"chains_imported"`
	ChainsSkipped  int        `json:"chains_skipped"`
	NewPrices      int64      `json:"new_prices"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// RunTotals is the outcome recorded when a run completes.
type RunTotals struct {
	ChainsImported int
	ChainsSkipped  int
	NewPrices      int64
}
