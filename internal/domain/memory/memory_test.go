package memory

import (
	"testing"

	"github.com/shells-above/swarmre/internal/domain/entity"
)

func TestStore_KeyCollisionAutoSuffix(t *testing.T) {
	s := NewStore()

	k1, err := s.Store("main_analysis", "first", entity.CategoryNote, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k1 != "main_analysis" {
		t.Fatalf("expected first key unchanged, got %q", k1)
	}

	k2, err := s.Store("main_analysis", "second", entity.CategoryNote, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k2 != "main_analysis_1" {
		t.Fatalf("expected auto-suffixed key, got %q", k2)
	}

	got, err := s.Get(GetFilter{Key: "main_analysis"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Content != "first" {
		t.Fatalf("expected original entry preserved, got %+v", got)
	}
}

func TestStore_GetByKeyRoundTrip(t *testing.T) {
	s := NewStore()
	addr := uint64(0x401000)
	related := []uint64{0x401010, 0x401020}

	key, err := s.Store("finding_1", "buffer overflow at entry", entity.CategoryFinding, &addr, related)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(GetFilter{Key: key})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one result, got %d", len(got))
	}
	e := got[0]
	if e.Content != "buffer overflow at entry" || e.Category != entity.CategoryFinding {
		t.Fatalf("round-trip mismatch: %+v", e)
	}
	if e.Address == nil || *e.Address != addr {
		t.Fatalf("expected address %x, got %+v", addr, e.Address)
	}
	if len(e.RelatedAddresses) != 2 || e.RelatedAddresses[0] != related[0] {
		t.Fatalf("related addresses mismatch: %+v", e.RelatedAddresses)
	}
}

func TestStore_GetByPattern(t *testing.T) {
	s := NewStore()
	s.Store("a", "contains KEYWORD here", entity.CategoryNote, nil, nil)
	s.Store("b", "no match", entity.CategoryNote, nil, nil)

	got, err := s.Get(GetFilter{Pattern: "keyword"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Key != "a" {
		t.Fatalf("expected case-insensitive match on entry a, got %+v", got)
	}
}

func TestStore_ExportRestoreRoundTrip(t *testing.T) {
	s := NewStore()
	addr := uint64(0x500)
	s.Store("k1", "content one", entity.CategoryHypothesis, &addr, []uint64{0x600})

	snap := s.Export()
	if len(snap.Analyses) != 1 {
		t.Fatalf("expected 1 snapshot entry, got %d", len(snap.Analyses))
	}
	if snap.Analyses[0].Address != "0x500" {
		t.Fatalf("expected hex address with 0x prefix, got %q", snap.Analyses[0].Address)
	}

	restored := NewStore()
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := restored.Get(GetFilter{Key: "k1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Content != "content one" {
		t.Fatalf("restore mismatch: %+v", got)
	}
	if got[0].Address == nil || *got[0].Address != addr {
		t.Fatalf("restore address mismatch: %+v", got[0].Address)
	}
}

func TestStore_VersionIncrementsOnMutation(t *testing.T) {
	s := NewStore()
	if s.Version() != 0 {
		t.Fatalf("expected initial version 0, got %d", s.Version())
	}
	s.Store("a", "x", entity.CategoryNote, nil, nil)
	if s.Version() != 1 {
		t.Fatalf("expected version 1 after one store, got %d", s.Version())
	}
	s.Store("a", "y", entity.CategoryNote, nil, nil)
	if s.Version() != 2 {
		t.Fatalf("expected version 2 after second store, got %d", s.Version())
	}
}

func TestStore_NearbyFunctions(t *testing.T) {
	s := NewStore()
	near := uint64(0x1000)
	far := uint64(0x9000)
	anchor := uint64(0x1010)

	s.Store("near", "close by", entity.CategoryNote, &near, nil)
	s.Store("far", "far away", entity.CategoryNote, &far, nil)

	got := s.NearbyFunctions(anchor, 0x100)
	if len(got) != 1 || got[0].Key != "near" {
		t.Fatalf("expected only the near entry within radius, got %+v", got)
	}
}
