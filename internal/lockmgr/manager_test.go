package lockmgr

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/slipway-sh/slipway/internal/entity"
	"github.com/slipway-sh/slipway/internal/repository"
)

// fakeProber stands in for the infrastructure tool's lock probe.
type fakeProber struct {
	locked  bool
	err     error
	cleared []string
}

func (f *fakeProber) IsLocked(ctx context.Context, stage string) (bool, error) {
	return f.locked, f.err
}

func (f *fakeProber) ClearLock(ctx context.Context, stage string) error {
	f.cleared = append(f.cleared, stage)
	return nil
}

func newManager(t *testing.T, prober *fakeProber, ttl time.Duration) *Manager {
	t.Helper()
	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(repository.NewLockRepository(db), prober, ttl)
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	m := newManager(t, &fakeProber{}, time.Hour)

	lock, err := m.Acquire(context.Background(), "production")
	if err != nil {
		t.Fatal(err)
	}
	if lock.Stage != "production" {
		t.Fatalf("unexpected stage %q", lock.Stage)
	}
	if !lock.ExpiresAt.After(lock.CreatedAt) {
		t.Fatal("lock must expire after creation")
	}

	if err := m.Release(context.Background(), lock); err != nil {
		t.Fatal(err)
	}

	// Re-acquisition after release must succeed: nothing lingers.
	if _, err := m.Acquire(context.Background(), "production"); err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
}

func TestAcquire_ConflictReturnsLockHeld(t *testing.T) {
	m := newManager(t, &fakeProber{}, time.Hour)
	if _, err := m.Acquire(context.Background(), "production"); err != nil {
		t.Fatal(err)
	}

	_, err := m.Acquire(context.Background(), "production")
	var held *entity.LockHeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected LockHeldError, got %v", err)
	}
	if held.Stage != "production" {
		t.Fatalf("unexpected stage %q", held.Stage)
	}
	if held.RemainingMinutes() < 1 || held.RemainingMinutes() > 60 {
		t.Fatalf("remaining minutes out of range: %d", held.RemainingMinutes())
	}

	// A different stage is unaffected.
	if _, err := m.Acquire(context.Background(), "staging"); err != nil {
		t.Fatalf("different stage must acquire: %v", err)
	}
}

func TestAcquire_SupersedesExpiredLock(t *testing.T) {
	m := newManager(t, &fakeProber{}, time.Millisecond)
	if _, err := m.Acquire(context.Background(), "production"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	// The expired lease no longer blocks, the new one supersedes it.
	lock, err := m.Acquire(context.Background(), "production")
	if err != nil {
		t.Fatalf("expected acquisition over expired lock: %v", err)
	}
	if lock.IsExpired(time.Now()) {
		t.Fatal("fresh lock must not be expired")
	}
}

func TestStaleLocks_ReportedNotDeleted(t *testing.T) {
	m := newManager(t, &fakeProber{}, time.Millisecond)
	if _, err := m.Acquire(context.Background(), "production"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	stale, err := m.StaleLocks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 || stale[0].Stage != "production" {
		t.Fatalf("expected one stale lock for production, got %+v", stale)
	}

	// Reporting must not remove the record; release is explicit.
	if _, err := m.Get(context.Background(), "production"); err != nil {
		t.Fatalf("stale lock record must survive reporting: %v", err)
	}
}

func TestAcquire_ExternalLockBlocks(t *testing.T) {
	m := newManager(t, &fakeProber{locked: true}, time.Hour)
	_, err := m.Acquire(context.Background(), "production")
	if !errors.Is(err, entity.ErrLockHeld) {
		t.Fatalf("expected lock held due to external state lock, got %v", err)
	}
}

func TestIsExternalStateLocked_FailsOpen(t *testing.T) {
	// A broken probe reads as unlocked: a monitoring outage must not
	// block deployments.
	m := newManager(t, &fakeProber{err: errors.New("pulumi unreachable")}, time.Hour)
	if m.IsExternalStateLocked(context.Background(), "production") {
		t.Fatal("probe failure must fail open to false")
	}
	if _, err := m.Acquire(context.Background(), "production"); err != nil {
		t.Fatalf("acquisition must proceed despite probe failure: %v", err)
	}
}

func TestClearExternalLock_Delegates(t *testing.T) {
	prober := &fakeProber{}
	m := newManager(t, prober, time.Hour)
	if err := m.ClearExternalLock(context.Background(), "production"); err != nil {
		t.Fatal(err)
	}
	if len(prober.cleared) != 1 || prober.cleared[0] != "production" {
		t.Fatalf("expected clear for production, got %v", prober.cleared)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	m := newManager(t, &fakeProber{}, time.Hour)
	lock, err := m.Acquire(context.Background(), "production")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Release(context.Background(), lock); err != nil {
		t.Fatal(err)
	}
	if err := m.Release(context.Background(), lock); err != nil {
		t.Fatalf("second release must succeed: %v", err)
	}
	if err := m.Release(context.Background(), nil); err != nil {
		t.Fatalf("nil release must be a no-op: %v", err)
	}
}

func TestGet_UnknownStage(t *testing.T) {
	m := newManager(t, &fakeProber{}, time.Hour)
	_, err := m.Get(context.Background(), "nope")
	if !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
