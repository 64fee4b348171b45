package utils

import (
	"testing"
)

func TestSet(t *testing.T) {
	// Sets are created empty.
	s := MakeSet[int](10)
	if len(s) != 0 {
		t.Errorf("expected len 0, got %d", len(s))
	}

	// Check inserting and recovery.
	s.Insert(3, 7)
	if len(s) != 2 {
		t.Errorf("expected len 2, got %d", len(s))
	}
	for _, key := range []int{3, 7} {
		if !s.Has(key) {
			t.Errorf("expected s.Has(%d) to be true", key)
		}
	}
	if s.Has(5) {
		t.Errorf("expected s.Has(5) to be false")
	}

	s2 := SetWith(5, 7)
	if len(s2) != 2 || !s2.Has(5) || !s2.Has(7) || s2.Has(3) {
		t.Errorf("SetWith(5, 7) built wrong set: %v", s2)
	}

	s3 := s.Sub(s2)
	if len(s3) != 1 || !s3.Has(3) {
		t.Errorf("expected {3}, got %v", s3)
	}

	delete(s, 7)
	if len(s) != 1 || !s.Has(3) || s.Has(7) {
		t.Errorf("expected {3} after delete, got %v", s)
	}
	if !s.Equal(s3) {
		t.Errorf("expected s.Equal(s3) to be true")
	}
	if s.Equal(s2) {
		t.Errorf("expected s.Equal(s2) to be false")
	}
	if s.Equal(SetWith(-3)) {
		t.Errorf("expected sets with different elements to not be Equal")
	}
}
