package tool

import (
	"context"
	"errors"
	"testing"
)

type stubTool struct {
	name string
	fail bool
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Kind() Kind          { return KindRead }
func (s *stubTool) Schema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}

func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	if s.fail {
		return nil, errors.New("boom")
	}
	return &Result{Success: true, Output: "ok"}, nil
}

func TestRegistry_PreservesRegistrationOrder(t *testing.T) {
	r := NewInMemoryRegistry()
	r.Register(&stubTool{name: "c"})
	r.Register(&stubTool{name: "a"})
	r.Register(&stubTool{name: "b"})

	defs := r.List()
	if len(defs) != 3 || defs[0].Name != "c" || defs[1].Name != "a" || defs[2].Name != "b" {
		t.Fatalf("expected registration order preserved, got %+v", defs)
	}
}

func TestRegistry_ReRegisterKeepsPosition(t *testing.T) {
	r := NewInMemoryRegistry()
	r.Register(&stubTool{name: "a"})
	r.Register(&stubTool{name: "b"})
	r.Register(&stubTool{name: "a", fail: true})

	defs := r.List()
	if defs[0].Name != "a" || defs[1].Name != "b" {
		t.Fatalf("expected re-registration to preserve position, got %+v", defs)
	}
}

func TestRegistry_DispatchUnknownToolNeverThrows(t *testing.T) {
	r := NewInMemoryRegistry()
	result := r.Dispatch(context.Background(), "nonexistent", nil)
	if result.Success {
		t.Fatalf("expected failure for unknown tool")
	}
	if result.Error != "Unknown tool: nonexistent" {
		t.Fatalf("unexpected error message: %q", result.Error)
	}
}

func TestRegistry_DispatchConvertsToolErrorToFailedResult(t *testing.T) {
	r := NewInMemoryRegistry()
	r.Register(&stubTool{name: "boom", fail: true})

	result := r.Dispatch(context.Background(), "boom", nil)
	if result.Success {
		t.Fatalf("expected failed result")
	}
	if result.Error != "boom" {
		t.Fatalf("unexpected error: %q", result.Error)
	}

	stats := r.Statistics()["boom"]
	if stats.Calls != 1 || stats.Failures != 1 || stats.Successes != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRegistry_DispatchTracksSuccessStats(t *testing.T) {
	r := NewInMemoryRegistry()
	r.Register(&stubTool{name: "ok"})

	r.Dispatch(context.Background(), "ok", nil)
	r.Dispatch(context.Background(), "ok", nil)

	stats := r.Statistics()["ok"]
	if stats.Calls != 2 || stats.Successes != 2 || stats.Failures != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRegistry_UnregisterRemovesFromOrder(t *testing.T) {
	r := NewInMemoryRegistry()
	r.Register(&stubTool{name: "a"})
	r.Register(&stubTool{name: "b"})
	if err := r.Unregister("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defs := r.List()
	if len(defs) != 1 || defs[0].Name != "b" {
		t.Fatalf("expected only b to remain, got %+v", defs)
	}
}
