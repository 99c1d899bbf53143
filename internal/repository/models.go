package repository

import (
	"encoding/json"
	"time"

	"github.com/samber/lo"
	"github.com/slipway-sh/slipway/internal/entity"
	"gorm.io/gorm"
)

type Lock struct {
	gorm.Model
	Stage     string `gorm:"uniqueIndex"`
	LockedAt  time.Time
	ExpiresAt time.Time
}

func (l *Lock) ToEntity() *entity.DeploymentLock {
	return &entity.DeploymentLock{
		Stage:     l.Stage,
		CreatedAt: l.LockedAt,
		ExpiresAt: l.ExpiresAt,
	}
}

func (l *Lock) FromEntity(e *entity.DeploymentLock) {
	l.Stage = e.Stage
	l.LockedAt = e.CreatedAt
	l.ExpiresAt = e.ExpiresAt
}

type ShiftState struct {
	gorm.Model
	DeploymentID   string `gorm:"uniqueIndex"`
	BlueVersion    string
	GreenVersion   string
	Percentage     int
	Status         string
	StartTime      time.Time
	LastUpdateTime time.Time
	// History is the append-only event trail, serialized as JSON.
	History string
}

func (s *ShiftState) ToEntity() *entity.TrafficShiftState {
	var history []entity.TrafficShiftEvent
	if s.History != "" {
		history = lo.Must(unmarshalJSON[[]entity.TrafficShiftEvent](s.History))
	}
	return &entity.TrafficShiftState{
		DeploymentID:      s.DeploymentID,
		BlueVersion:       s.BlueVersion,
		GreenVersion:      s.GreenVersion,
		CurrentPercentage: s.Percentage,
		Status:            entity.ShiftStatus(s.Status),
		StartTime:         s.StartTime,
		LastUpdateTime:    s.LastUpdateTime,
		History:           history,
	}
}

func (s *ShiftState) FromEntity(e *entity.TrafficShiftState) {
	s.DeploymentID = e.DeploymentID
	s.BlueVersion = e.BlueVersion
	s.GreenVersion = e.GreenVersion
	s.Percentage = e.CurrentPercentage
	s.Status = string(e.Status)
	s.StartTime = e.StartTime
	s.LastUpdateTime = e.LastUpdateTime
	s.History = string(lo.Must(json.Marshal(e.History)))
}

type CanaryRecord struct {
	gorm.Model
	DeploymentID string `gorm:"uniqueIndex"`
	Config       string
	Metrics      string
	Failures     int
	Rollback     bool
	Reason       string
	Status       string
}

// ToEntity rebuilds the canary state minus its traffic snapshot; the canary
// manager refreshes TrafficState through the shifter after loading.
func (c *CanaryRecord) ToEntity() *entity.CanaryState {
	state := &entity.CanaryState{
		DeploymentID:        c.DeploymentID,
		Config:              lo.Must(unmarshalJSON[entity.CanaryConfig](c.Config)),
		HealthCheckFailures: c.Failures,
		ShouldRollback:      c.Rollback,
		RollbackReason:      c.Reason,
		Status:              entity.CanaryStatus(c.Status),
	}
	if c.Metrics != "" {
		m := lo.Must(unmarshalJSON[entity.HealthMetrics](c.Metrics))
		state.CurrentMetrics = &m
	}
	return state
}

func (c *CanaryRecord) FromEntity(e *entity.CanaryState) {
	c.DeploymentID = e.DeploymentID
	c.Config = string(lo.Must(json.Marshal(e.Config)))
	c.Metrics = ""
	if e.CurrentMetrics != nil {
		c.Metrics = string(lo.Must(json.Marshal(e.CurrentMetrics)))
	}
	c.Failures = e.HealthCheckFailures
	c.Rollback = e.ShouldRollback
	c.Reason = e.RollbackReason
	c.Status = string(e.Status)
}

func unmarshalJSON[T any](s string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
