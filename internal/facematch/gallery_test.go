package facematch

import (
	"errors"
	"math"
	"testing"
	"time"
)

func vec(dim int, vals ...float32) []float32 {
	v := make([]float32, dim)
	copy(v, vals)
	return v
}

func TestGalleryAddAndNearest(t *testing.T) {
	g := NewGallery(4)

	if err := g.Add(StudentRecord{
		ID:         "alice",
		Name:       "Alice",
		Embeddings: [][]float32{vec(4, 1, 0, 0, 0)},
	}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := g.Add(StudentRecord{
		ID:         "bob",
		Name:       "Bob",
		Embeddings: [][]float32{vec(4, 0, 1, 0, 0)},
	}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	id, dist, ok, err := g.Nearest(vec(4, 0.9, 0, 0, 0))
	if err != nil {
		t.Fatalf("Nearest() error: %v", err)
	}
	if !ok {
		t.Fatal("Nearest() ok = false, want true")
	}
	if id != "ALICE" {
		t.Errorf("Nearest() id = %q, want ALICE", id)
	}
	if math.Abs(dist-0.1) > 1e-6 {
		t.Errorf("Nearest() distance = %v, want 0.1", dist)
	}
}

func TestGalleryEmptyNearest(t *testing.T) {
	g := NewGallery(4)

	_, _, ok, err := g.Nearest(vec(4))
	if err != nil {
		t.Fatalf("Nearest() error: %v", err)
	}
	if ok {
		t.Error("Nearest() on empty gallery: ok = true, want false")
	}
}

func TestGalleryDimensionMismatch(t *testing.T) {
	g := NewGallery(4)

	if err := g.Add(StudentRecord{ID: "a", Embeddings: [][]float32{vec(3)}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add() with wrong dim: err = %v, want ErrDimensionMismatch", err)
	}

	if _, _, _, err := g.Nearest(vec(5)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Nearest() with wrong dim: err = %v, want ErrDimensionMismatch", err)
	}
}

func TestGalleryAddReplaces(t *testing.T) {
	g := NewGallery(4)

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}
	must(g.Add(StudentRecord{ID: "alice", Embeddings: [][]float32{vec(4, 1), vec(4, 0, 1)}}))
	must(g.Add(StudentRecord{ID: "alice", Embeddings: [][]float32{vec(4, 0, 0, 1)}}))

	if got := g.EmbeddingCount(); got != 1 {
		t.Errorf("EmbeddingCount() = %d, want 1 after replacement", got)
	}
	if got := g.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestGalleryLoadSkipsCorruptRecords(t *testing.T) {
	g := NewGallery(4)

	records := []StudentRecord{
		{ID: "alice", Name: "Alice", Embeddings: [][]float32{vec(4, 1)}},
		{ID: "", Embeddings: [][]float32{vec(4)}},                 // missing id
		{ID: "bob", Embeddings: nil},                              // empty set
		{ID: "carol", Embeddings: [][]float32{vec(7)}},            // wrong dim
		{ID: "dave", Name: "Dave", Embeddings: [][]float32{vec(4, 0, 1)}},
	}

	loaded, skipped := g.Load(records)

	if loaded != 2 || skipped != 3 {
		t.Errorf("Load() = (%d loaded, %d skipped), want (2, 3)", loaded, skipped)
	}
	if !g.Has("alice") || !g.Has("dave") {
		t.Error("valid records should have loaded")
	}
	if g.Has("bob") || g.Has("carol") {
		t.Error("corrupt records should have been skipped")
	}
}

func TestGalleryLoadIdempotent(t *testing.T) {
	records := []StudentRecord{
		{ID: "alice", Name: "Alice", Embeddings: [][]float32{vec(4, 1), vec(4, 0, 1)}},
	}

	g := NewGallery(4)
	g.Load(records)
	g.Load(records)

	if got := g.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
	if got := g.EmbeddingCount(); got != 2 {
		t.Errorf("EmbeddingCount() = %d, want 2", got)
	}
}

func TestGallerySnapshotRoundTrip(t *testing.T) {
	g := NewGallery(4)
	registered := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	original := StudentRecord{
		ID:           "alice",
		Name:         "Alice",
		Embeddings:   [][]float32{vec(4, 0.25, 0.5, 0.75, 1)},
		RegisteredAt: registered,
		ImageCount:   3,
	}
	if err := g.Add(original); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	snap, ok := g.Snapshot("ALICE")
	if !ok {
		t.Fatal("Snapshot() not found")
	}

	g2 := NewGallery(4)
	if loaded, skipped := g2.Load([]StudentRecord{snap}); loaded != 1 || skipped != 0 {
		t.Fatalf("Load(snapshot) = (%d, %d), want (1, 0)", loaded, skipped)
	}

	snap2, ok := g2.Snapshot("alice")
	if !ok {
		t.Fatal("round-tripped record missing")
	}
	if snap2.Name != "Alice" || snap2.ImageCount != 3 || !snap2.RegisteredAt.Equal(registered) {
		t.Errorf("round-tripped metadata differs: %+v", snap2)
	}
	for i := range snap.Embeddings {
		for j := range snap.Embeddings[i] {
			diff := float64(snap.Embeddings[i][j] - snap2.Embeddings[i][j])
			if math.Abs(diff) > 1e-6 {
				t.Fatalf("embedding[%d][%d] differs by %v", i, j, diff)
			}
		}
	}
}

func TestGallerySnapshotIsACopy(t *testing.T) {
	g := NewGallery(4)
	if err := g.Add(StudentRecord{ID: "alice", Embeddings: [][]float32{vec(4, 1)}}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	snap, _ := g.Snapshot("alice")
	snap.Embeddings[0][0] = 99

	again, _ := g.Snapshot("alice")
	if again.Embeddings[0][0] != 1 {
		t.Error("mutating a snapshot leaked into the gallery")
	}
}
