package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slipway-sh/slipway/internal/entity"
	"gorm.io/gorm"
)

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func TestLockRepository_RoundTrip(t *testing.T) {
	repo := NewLockRepository(newDB(t))
	now := time.Now().Truncate(time.Second)

	saved, err := repo.Save(context.Background(), &entity.DeploymentLock{
		Stage:     "production",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if saved.Stage != "production" {
		t.Fatalf("unexpected stage %q", saved.Stage)
	}

	found, err := repo.Get(context.Background(), "production")
	if err != nil {
		t.Fatal(err)
	}
	if !found.ExpiresAt.Equal(saved.ExpiresAt) {
		t.Fatalf("expiry mismatch: %s vs %s", found.ExpiresAt, saved.ExpiresAt)
	}

	if err := repo.Delete(context.Background(), "production"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Get(context.Background(), "production"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	// Idempotent delete.
	if err := repo.Delete(context.Background(), "production"); err != nil {
		t.Fatalf("second delete must succeed: %v", err)
	}
}

func TestLockRepository_SaveReplacesByStage(t *testing.T) {
	repo := NewLockRepository(newDB(t))
	now := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := repo.Save(context.Background(), &entity.DeploymentLock{
			Stage:     "production",
			CreatedAt: now,
			ExpiresAt: now.Add(time.Duration(i+1) * time.Hour),
		}); err != nil {
			t.Fatal(err)
		}
	}
	locks, err := repo.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(locks) != 1 {
		t.Fatalf("expected upsert to keep one record, got %d", len(locks))
	}
}

func TestShiftStateRepository_RoundTripWithHistory(t *testing.T) {
	repo := NewShiftStateRepository(newDB(t))
	now := time.Now().Truncate(time.Second)

	state := &entity.TrafficShiftState{
		DeploymentID:      "d1",
		BlueVersion:       "v1",
		GreenVersion:      "v2",
		CurrentPercentage: 35,
		Status:            entity.ShiftStatusInProgress,
		StartTime:         now,
		LastUpdateTime:    now,
		History: []entity.TrafficShiftEvent{
			{Timestamp: now, FromPercentage: 0, ToPercentage: 10, Reason: "Initial canary traffic shift", Success: true},
			{Timestamp: now, FromPercentage: 10, ToPercentage: 35, Reason: "step", Success: true},
		},
	}
	if err := repo.Save(context.Background(), state); err != nil {
		t.Fatal(err)
	}

	found, err := repo.Get(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if found.CurrentPercentage != 35 || found.Status != entity.ShiftStatusInProgress {
		t.Fatalf("unexpected state: %d%% %s", found.CurrentPercentage, found.Status)
	}
	if len(found.History) != 2 {
		t.Fatalf("expected 2 history events, got %d", len(found.History))
	}
	if found.History[1].Reason != "step" {
		t.Fatalf("history order lost: %+v", found.History)
	}

	if err := repo.Delete(context.Background(), "d1"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Get(context.Background(), "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestCanaryStateRepository_RoundTrip(t *testing.T) {
	repo := NewCanaryStateRepository(newDB(t))
	errorRate := 5.0

	state := &entity.CanaryState{
		DeploymentID: "d1",
		Config: entity.CanaryConfig{
			Shift:                 entity.ShiftConfig{InitialPercentage: 10, IncrementPercentage: 20},
			RollbackOn:            entity.HealthThresholds{ErrorRate: &errorRate},
			FailureThresholdCount: 2,
		},
		CurrentMetrics:      &entity.HealthMetrics{ErrorRate: 7.5, RequestCount: 1000},
		HealthCheckFailures: 1,
		Status:              entity.CanaryStatusDegraded,
	}
	if err := repo.Save(context.Background(), state); err != nil {
		t.Fatal(err)
	}

	found, err := repo.Get(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if found.Status != entity.CanaryStatusDegraded || found.HealthCheckFailures != 1 {
		t.Fatalf("unexpected state: %s failures=%d", found.Status, found.HealthCheckFailures)
	}
	if found.Config.RollbackOn.ErrorRate == nil || *found.Config.RollbackOn.ErrorRate != 5.0 {
		t.Fatalf("threshold lost in round trip: %+v", found.Config.RollbackOn)
	}
	if found.CurrentMetrics == nil || found.CurrentMetrics.RequestCount != 1000 {
		t.Fatalf("metrics lost in round trip: %+v", found.CurrentMetrics)
	}
}

func TestMemoryRepositories_MatchSQLiteBehavior(t *testing.T) {
	shiftRepos := map[string]ShiftStateRepository{
		"memory": NewMemoryShiftStateRepository(),
		"sqlite": NewShiftStateRepository(newDB(t)),
	}
	for name, repo := range shiftRepos {
		t.Run(name, func(t *testing.T) {
			if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
			state := &entity.TrafficShiftState{DeploymentID: "d1", Status: entity.ShiftStatusStarting}
			if err := repo.Save(context.Background(), state); err != nil {
				t.Fatal(err)
			}
			found, err := repo.Get(context.Background(), "d1")
			if err != nil {
				t.Fatal(err)
			}
			// Mutating the returned value must not leak into the store.
			found.History = append(found.History, entity.TrafficShiftEvent{Reason: "local"})
			again, err := repo.Get(context.Background(), "d1")
			if err != nil {
				t.Fatal(err)
			}
			if len(again.History) != 0 {
				t.Fatal("store leaked a caller-side mutation")
			}
		})
	}
}
