package identity

import (
	"strings"
	"testing"
)

func TestAllocate_LowestFreeIndex(t *testing.T) {
	got := Allocate(map[int]bool{}, 0, nil)
	if got.Index != 0 || got.Label != "Fuchs" {
		t.Errorf("expected Fuchs at index 0, got %+v", got)
	}

	got = Allocate(map[int]bool{0: true, 1: true, 3: true}, 3, nil)
	if got.Index != 2 {
		t.Errorf("expected index 2 (first gap), got %d", got.Index)
	}
}

func TestAllocate_ReusesReleasedIndex(t *testing.T) {
	used := map[int]bool{}
	for i := 0; i < 5; i++ {
		used[Allocate(used, len(used), nil).Index] = true
	}
	delete(used, 1)
	if got := Allocate(used, len(used), nil); got.Index != 1 {
		t.Errorf("expected released index 1 to be reused, got %d", got.Index)
	}
}

func TestAllocate_UniqueUntilExhausted(t *testing.T) {
	used := map[int]bool{}
	labels := map[string]bool{}
	for i := 0; i < Size(); i++ {
		id := Allocate(used, i, nil)
		if used[id.Index] {
			t.Fatalf("index %d assigned twice", id.Index)
		}
		used[id.Index] = true
		labels[id.AnonymousID()] = true
	}
	if len(labels) != Size() {
		t.Errorf("expected %d distinct labels, got %d", Size(), len(labels))
	}
}

func TestAllocate_ExhaustedFallback(t *testing.T) {
	used := map[int]bool{}
	for i := 0; i < Size(); i++ {
		used[i] = true
	}

	got := Allocate(used, Size(), func(n int) int {
		if n != Size() {
			t.Errorf("random range should cover the catalogue, got %d", n)
		}
		return 4
	})

	if got.Index != 4 {
		t.Errorf("expected fallback to index 4, got %d", got.Index)
	}
	if got.Label != "Schmetterling 29" {
		t.Errorf("expected ordinal suffix, got %q", got.Label)
	}
	if !strings.HasPrefix(got.AnonymousID(), "🦋 ") {
		t.Errorf("unexpected anonymous id %q", got.AnonymousID())
	}
	if At(4).Label != "Schmetterling" {
		t.Error("fallback must not mutate the catalogue")
	}
}

func TestCatalogue_IndexesMatchPositions(t *testing.T) {
	if Size() != 28 {
		t.Errorf("expected 28 identities, got %d", Size())
	}
	for i := 0; i < Size(); i++ {
		if At(i).Index != i {
			t.Errorf("entry %d has index %d", i, At(i).Index)
		}
	}
}
