package entity

import "time"

type ShiftStatus string

const (
	ShiftStatusStarting   ShiftStatus = "starting"
	ShiftStatusInProgress ShiftStatus = "in-progress"
	ShiftStatusCompleted  ShiftStatus = "completed"
	ShiftStatusRolledBack ShiftStatus = "rolled-back"
)

const (
	DefaultIncrementPercentage = 25
	DefaultFinalPercentage     = 100
	DefaultIncrementInterval   = 5 * time.Minute
)

// TrafficShiftEvent is one entry in the append-only audit trail of a shift.
// Events are never mutated after creation.
type TrafficShiftEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	FromPercentage int       `json:"from_percentage"`
	ToPercentage   int       `json:"to_percentage"`
	Reason         string    `json:"reason"`
	Success        bool      `json:"success"`
}

// TrafficShiftState tracks the share of traffic routed to the green
// (candidate) version of a deployment. CurrentPercentage is always green's
// share; blue receives the remainder.
type TrafficShiftState struct {
	DeploymentID      string              `json:"deployment_id"`
	BlueVersion       string              `json:"blue_version"`
	GreenVersion      string              `json:"green_version"`
	CurrentPercentage int                 `json:"current_percentage"`
	Status            ShiftStatus         `json:"status"`
	StartTime         time.Time           `json:"start_time"`
	LastUpdateTime    time.Time           `json:"last_update_time"`
	History           []TrafficShiftEvent `json:"history"`
}

// ShiftConfig controls the pacing of a gradual traffic shift.
type ShiftConfig struct {
	InitialPercentage   int           `json:"initial_percentage"`
	IncrementPercentage int           `json:"increment_percentage"`
	FinalPercentage     int           `json:"final_percentage"`
	IncrementInterval   time.Duration `json:"increment_interval"`
}

// WithDefaults fills zero-valued pacing fields. InitialPercentage is left
// as-is: 0 is a legal starting point.
func (c ShiftConfig) WithDefaults() ShiftConfig {
	if c.IncrementPercentage == 0 {
		c.IncrementPercentage = DefaultIncrementPercentage
	}
	if c.FinalPercentage == 0 {
		c.FinalPercentage = DefaultFinalPercentage
	}
	if c.IncrementInterval == 0 {
		c.IncrementInterval = DefaultIncrementInterval
	}
	return c
}
