package conflict

import (
	"testing"
	"time"
)

func TestDetector_NoConflictOnFirstWrite(t *testing.T) {
	d := NewDetector("bin1", NewMemStore())

	if err := d.Record("rename_function", 0x401000, map[string]interface{}{"name": "foo"}, "agent_a", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conflicts, err := d.CheckConflict("rename_function", 0x401000, "agent_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflict against own prior write, got %+v", conflicts)
	}
}

func TestDetector_ConflictOnSameCollisionClassDifferentAgent(t *testing.T) {
	d := NewDetector("bin1", NewMemStore())
	ts := time.Now()

	if err := d.Record("rename_function", 0x401000, nil, "agent_a", ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conflicts, err := d.CheckConflict("rename_variable", 0x401000, "agent_b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].AgentID != "agent_a" {
		t.Fatalf("expected one conflict from agent_a (same collision class), got %+v", conflicts)
	}
}

func TestDetector_NoConflictAcrossDifferentCollisionClasses(t *testing.T) {
	d := NewDetector("bin1", NewMemStore())

	if err := d.Record("rename_function", 0x401000, nil, "agent_a", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conflicts, err := d.CheckConflict("set_type", 0x401000, "agent_b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflict between rename and retype, got %+v", conflicts)
	}
}

func TestDetector_ReadToolsNeverConflict(t *testing.T) {
	d := NewDetector("bin1", NewMemStore())
	if d.IsWriteTool("list_functions") {
		t.Fatalf("expected list_functions to not be a write tool")
	}
	conflicts, err := d.CheckConflict("list_functions", 0x401000, "agent_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conflicts != nil {
		t.Fatalf("expected nil for a read tool, got %+v", conflicts)
	}
}

func TestDetector_DifferentBinariesIsolated(t *testing.T) {
	store := NewMemStore()
	d1 := NewDetector("bin1", store)
	d2 := NewDetector("bin2", store)

	if err := d1.Record("rename_function", 0x1000, nil, "agent_a", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conflicts, err := d2.CheckConflict("rename_function", 0x1000, "agent_b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected binaries to be isolated, got %+v", conflicts)
	}
}

func TestDetector_RegisterCollisionClass(t *testing.T) {
	d := NewDetector("bin1", NewMemStore())
	d.RegisterCollisionClass("custom_tool", CollisionVariable)
	if !d.IsWriteTool("custom_tool") {
		t.Fatalf("expected custom_tool to be registered as a write tool")
	}

	d.Record("set_variable", 0x2000, nil, "agent_a", time.Now())
	conflicts, _ := d.CheckConflict("custom_tool", 0x2000, "agent_b")
	if len(conflicts) != 1 {
		t.Fatalf("expected custom_tool to collide with set_variable, got %+v", conflicts)
	}
}
