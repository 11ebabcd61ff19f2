package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/scbe-labs/gate/pkg/contracts"
	"github.com/scbe-labs/gate/pkg/policy"
)

func openCheckpointStore(t *testing.T) *SQLiteCheckpointStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLiteCheckpointStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteCheckpointStore: %v", err)
	}
	return s
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := openCheckpointStore(t)
	ctx := context.Background()

	reg := policy.NewInMemory()
	key := contracts.IntentKey{Primary: "process", Modifier: "analyze", Harmonic: 3}
	if err := reg.RegisterIntent(ctx, key, []string{"anthropic", "internal-cache"}); err != nil {
		t.Fatalf("RegisterIntent: %v", err)
	}
	if err := reg.SetTrust(ctx, "anthropic", 0.9); err != nil {
		t.Fatalf("SetTrust: %v", err)
	}

	snap, err := reg.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a checkpoint")
	}

	restored := policy.NewInMemory()
	if err := restored.Restore(ctx, loaded); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	ok, err := restored.Allowed(ctx, key, "internal-cache")
	if err != nil || !ok {
		t.Errorf("allow-list lost through checkpoint, ok=%v err=%v", ok, err)
	}
	trust, err := restored.Trust(ctx, "anthropic")
	if err != nil || trust != 0.9 {
		t.Errorf("trust lost through checkpoint: %v err=%v", trust, err)
	}
}

func TestLoadReturnsNilWhenEmpty(t *testing.T) {
	s := openCheckpointStore(t)
	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot, got %+v", snap)
	}
}

func TestLoadReturnsLatest(t *testing.T) {
	s := openCheckpointStore(t)
	ctx := context.Background()

	first := &policy.Snapshot{Trust: map[string]float64{"a": 0.4}}
	second := &policy.Snapshot{Trust: map[string]float64{"a": 0.7}}
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Trust["a"] != 0.7 {
		t.Errorf("expected newest checkpoint, got %+v", loaded)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	s := openCheckpointStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		snap := &policy.Snapshot{Trust: map[string]float64{"a": float64(i) / 10}}
		if err := s.Save(ctx, snap); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := s.Prune(ctx, 2); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Trust["a"] != 0.4 {
		t.Errorf("prune dropped the newest checkpoint: %+v", loaded)
	}
}
