package sourcelist

import "testing"

func TestEmplaceAndSize(t *testing.T) {
	l := New()
	for _, id := range []uint32{0, 1, 2} {
		if err := l.Emplace(id, []byte("x"), 1); err != nil {
			t.Fatalf("Emplace(%d): %v", id, err)
		}
	}
	if l.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", l.Size())
	}
}

func TestEmplaceRejectsNonIncreasing(t *testing.T) {
	l := New()
	if err := l.Emplace(5, nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := l.Emplace(5, nil, 0); err == nil {
		t.Fatal("expected error for duplicate id")
	}
	if err := l.Emplace(3, nil, 0); err == nil {
		t.Fatal("expected error for decreasing id")
	}
}

func TestEraseIDsBulkAndIdempotent(t *testing.T) {
	l := New()
	for _, id := range []uint32{0, 1, 2, 3, 4} {
		l.Emplace(id, nil, 0)
	}
	removed := l.EraseIDs(map[uint32]struct{}{1: {}, 3: {}})
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if got := l.Ids(); len(got) != 3 || got[0] != 0 || got[1] != 2 || got[2] != 4 {
		t.Fatalf("Ids() = %v, want [0 2 4]", got)
	}
	// erasing already-removed and nonexistent ids is a no-op.
	removed = l.EraseIDs(map[uint32]struct{}{1: {}, 99: {}})
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}

func TestEraseUpToCumulative(t *testing.T) {
	l := New()
	for _, id := range []uint32{0, 1, 2, 3} {
		l.Emplace(id, nil, 0)
	}
	removed := l.EraseUpTo(1)
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if got := l.Ids(); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("Ids() = %v, want [2 3]", got)
	}
}

func TestPopFront(t *testing.T) {
	l := New()
	l.Emplace(0, nil, 0)
	l.Emplace(1, nil, 0)
	e, ok := l.PopFront()
	if !ok || e.ID != 0 {
		t.Fatalf("PopFront() = %+v, %v", e, ok)
	}
	if l.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", l.Size())
	}
}
