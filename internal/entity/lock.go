package entity

import "time"

// DeploymentLock is the durable single-writer lease for a deployment stage.
// At most one non-expired lock exists per stage; expiry does not delete the
// record, it only marks it reclaimable by an explicit recovery action.
type DeploymentLock struct {
	Stage     string    `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (l *DeploymentLock) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

func (l *DeploymentLock) Remaining(now time.Time) time.Duration {
	return l.ExpiresAt.Sub(now)
}
