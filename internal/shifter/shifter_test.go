package shifter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slipway-sh/slipway/internal/entity"
	"github.com/slipway-sh/slipway/internal/repository"
)

func newShifter() *Shifter {
	return New(repository.NewMemoryShiftStateRepository())
}

func TestStart_InitialState(t *testing.T) {
	s := newShifter()
	state, err := s.Start(context.Background(), "d1", "v1", "v2", entity.ShiftConfig{InitialPercentage: 10})
	if err != nil {
		t.Fatal(err)
	}
	if state.CurrentPercentage != 10 {
		t.Fatalf("expected 10%%, got %d%%", state.CurrentPercentage)
	}
	if state.Status != entity.ShiftStatusStarting {
		t.Fatalf("expected status starting, got %s", state.Status)
	}
	if len(state.History) != 1 {
		t.Fatalf("expected 1 initial event, got %d", len(state.History))
	}
	if ev := state.History[0]; ev.FromPercentage != 0 || ev.ToPercentage != 10 {
		t.Fatalf("unexpected initial event: %+v", ev)
	}
}

func TestStart_RejectsBadInitialPercentage(t *testing.T) {
	s := newShifter()
	_, err := s.Start(context.Background(), "d1", "v1", "v2", entity.ShiftConfig{InitialPercentage: 101})
	if !errors.Is(err, entity.ErrInvalid) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNextTarget(t *testing.T) {
	tests := []struct {
		name       string
		initial    int
		increment  int
		final      int
		wantTarget int
		wantOK     bool
	}{
		{"first step from zero", 0, 25, 100, 25, true},
		{"clamped to final", 90, 25, 100, 100, true},
		{"already at final", 100, 25, 100, 0, false},
		{"custom final", 40, 20, 50, 50, true},
		{"at custom final", 50, 20, 50, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newShifter()
			cfg := entity.ShiftConfig{
				InitialPercentage:   tt.initial,
				IncrementPercentage: tt.increment,
				FinalPercentage:     tt.final,
			}
			if _, err := s.Start(context.Background(), "d1", "v1", "v2", cfg); err != nil {
				t.Fatal(err)
			}
			target, ok, err := s.NextTarget(context.Background(), "d1", cfg)
			if err != nil {
				t.Fatal(err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && target != tt.wantTarget {
				t.Fatalf("target = %d, want %d", target, tt.wantTarget)
			}
		})
	}
}

func TestUpdateTraffic_CompletesAtHundred(t *testing.T) {
	s := newShifter()
	if _, err := s.Start(context.Background(), "d1", "v1", "v2", entity.ShiftConfig{InitialPercentage: 50}); err != nil {
		t.Fatal(err)
	}
	state, err := s.UpdateTraffic(context.Background(), "d1", 75, "step")
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != entity.ShiftStatusInProgress {
		t.Fatalf("expected in-progress at 75%%, got %s", state.Status)
	}
	state, err = s.UpdateTraffic(context.Background(), "d1", 100, "final step")
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != entity.ShiftStatusCompleted {
		t.Fatalf("expected completed at 100%%, got %s", state.Status)
	}
	if state.CurrentPercentage != 100 {
		t.Fatalf("expected 100%% after completion, got %d%%", state.CurrentPercentage)
	}
}

func TestUpdateTraffic_RejectsOutOfRange(t *testing.T) {
	s := newShifter()
	if _, err := s.Start(context.Background(), "d1", "v1", "v2", entity.ShiftConfig{}); err != nil {
		t.Fatal(err)
	}
	for _, target := range []int{-1, 101} {
		if _, err := s.UpdateTraffic(context.Background(), "d1", target, "bad"); !errors.Is(err, entity.ErrInvalid) {
			t.Fatalf("target %d: expected validation error, got %v", target, err)
		}
	}
	// Failed update must not leave a history entry behind.
	state, err := s.Get(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(state.History) != 1 {
		t.Fatalf("expected only the initial event, got %d", len(state.History))
	}
}

func TestRollback_IsTerminalAndIdempotent(t *testing.T) {
	s := newShifter()
	if _, err := s.Start(context.Background(), "d1", "v1", "v2", entity.ShiftConfig{InitialPercentage: 60}); err != nil {
		t.Fatal(err)
	}
	first, err := s.Rollback(context.Background(), "d1", "error rate spike")
	if err != nil {
		t.Fatal(err)
	}
	if first.CurrentPercentage != 0 || first.Status != entity.ShiftStatusRolledBack {
		t.Fatalf("unexpected state after rollback: %d%% %s", first.CurrentPercentage, first.Status)
	}
	second, err := s.Rollback(context.Background(), "d1", "again")
	if err != nil {
		t.Fatal(err)
	}
	if second.CurrentPercentage != 0 || second.Status != entity.ShiftStatusRolledBack {
		t.Fatalf("rollback not idempotent: %d%% %s", second.CurrentPercentage, second.Status)
	}
}

func TestRollback_BlocksFurtherProgress(t *testing.T) {
	s := newShifter()
	cfg := entity.ShiftConfig{InitialPercentage: 50, IncrementPercentage: 25}
	if _, err := s.Start(context.Background(), "d1", "v1", "v2", cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Rollback(context.Background(), "d1", "abort"); err != nil {
		t.Fatal(err)
	}

	// No next step exists for a rolled-back shift, even though the current
	// percentage is below final.
	if _, ok, err := s.NextTarget(context.Background(), "d1", cfg); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Fatal("NextTarget must not offer a step after rollback")
	}

	// Direct updates are refused as well.
	if _, err := s.UpdateTraffic(context.Background(), "d1", 25, "step"); !errors.Is(err, entity.ErrInvalid) {
		t.Fatalf("expected validation error updating a rolled-back shift, got %v", err)
	}
	state, err := s.Get(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if state.CurrentPercentage != 0 || state.Status != entity.ShiftStatusRolledBack {
		t.Fatalf("rolled-back state mutated: %d%% %s", state.CurrentPercentage, state.Status)
	}

	// A fresh Start replaces the state and progression works again.
	if _, err := s.Start(context.Background(), "d1", "v1", "v3", cfg); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.NextTarget(context.Background(), "d1", cfg); err != nil || !ok {
		t.Fatalf("expected a step after a fresh start, ok=%v err=%v", ok, err)
	}
}

func TestReadyForNextIncrement(t *testing.T) {
	s := newShifter()
	if _, err := s.Start(context.Background(), "d1", "v1", "v2", entity.ShiftConfig{}); err != nil {
		t.Fatal(err)
	}
	ready, err := s.ReadyForNextIncrement(context.Background(), "d1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !ready {
		t.Fatal("expected ready with zero interval")
	}
	ready, err = s.ReadyForNextIncrement(context.Background(), "d1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if ready {
		t.Fatal("expected not ready with one hour interval")
	}
}

func TestSummary(t *testing.T) {
	s := newShifter()
	if _, err := s.Start(context.Background(), "d1", "v1", "v2", entity.ShiftConfig{InitialPercentage: 10}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateTraffic(context.Background(), "d1", 35, "step"); err != nil {
		t.Fatal(err)
	}
	summary, err := s.Summary(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if summary.CurrentPercentage != 35 {
		t.Fatalf("expected 35%%, got %d%%", summary.CurrentPercentage)
	}
	if summary.EventCount != 2 || summary.SuccessfulEvents != 2 {
		t.Fatalf("unexpected event counts: %d/%d", summary.SuccessfulEvents, summary.EventCount)
	}
}

func TestUnknownDeploymentID(t *testing.T) {
	s := newShifter()
	if _, _, err := s.NextTarget(context.Background(), "nope", entity.ShiftConfig{}); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("NextTarget: expected not found, got %v", err)
	}
	if _, err := s.UpdateTraffic(context.Background(), "nope", 50, "x"); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("UpdateTraffic: expected not found, got %v", err)
	}
	if _, err := s.Rollback(context.Background(), "nope", "x"); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("Rollback: expected not found, got %v", err)
	}
	var nf *entity.NotFoundError
	_, err := s.Summary(context.Background(), "nope")
	if !errors.As(err, &nf) {
		t.Fatalf("Summary: expected NotFoundError, got %v", err)
	}
	if nf.ID != "nope" {
		t.Fatalf("NotFoundError should name the id, got %q", nf.ID)
	}
}
