package pool

import "testing"

func TestSnapshotIsACopy(t *testing.T) {
	p := New([]string{"127.0.0.1:8001", "127.0.0.1:8002"})

	snap := p.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(snap))
	}

	snap[0] = "mutated"
	again := p.Snapshot()
	if again[0] == "mutated" {
		t.Fatalf("mutating a snapshot must not affect the pool")
	}
}

func TestEmptyPool(t *testing.T) {
	p := New(nil)
	if snap := p.Snapshot(); len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap)
	}
	if p.Len() != 0 {
		t.Fatalf("expected length 0")
	}
}
