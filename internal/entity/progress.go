package entity

import "time"

type StageStatus string

const (
	StageStatusPending StageStatus = "pending"
	StageStatusRunning StageStatus = "running"
	StageStatusPassed  StageStatus = "passed"
	StageStatusFailed  StageStatus = "failed"
	StageStatusSkipped StageStatus = "skipped"
)

// StageProgress is the bookkeeping record for one named pipeline stage.
// Number is 1-based and fixed at construction.
type StageProgress struct {
	Number    int           `json:"number"`
	Total     int           `json:"total"`
	Name      string        `json:"name"`
	Status    StageStatus   `json:"status"`
	Duration  time.Duration `json:"duration"`
	StartTime time.Time     `json:"start_time"`
}
