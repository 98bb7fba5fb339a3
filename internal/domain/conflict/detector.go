// Package conflict implements the Conflict Detector and Conflict Coordinator
// (spec §4.4, §4.10). Grounded on original_source/agent/swarm_agent.cpp's
// ConflictDetector/record_tool_call/check_conflict/handle_conflict_notification
// flow and original_source/agent/agent_irc_tools.h's mark-consensus tool.
package conflict

import (
	"sync"
	"time"

	"github.com/shells-above/swarmre/internal/domain/entity"
)

// CollisionClass groups write tools that mutate the same kind of host state.
// Two tool calls at the same address collide only when their classes match —
// a rename and a retype on the same function do not contend.
type CollisionClass string

const (
	CollisionRename    CollisionClass = "rename"
	CollisionRetype    CollisionClass = "retype"
	CollisionComment   CollisionClass = "comment"
	CollisionSignature CollisionClass = "signature"
	CollisionPatch     CollisionClass = "patch"
	CollisionVariable  CollisionClass = "variable"
)

// defaultClassOf is the fixed per-tool collision table the spec requires.
// Extended per deployment via Detector.RegisterCollisionClass.
var defaultClassOf = map[string]CollisionClass{
	"rename_function":        CollisionRename,
	"rename_variable":        CollisionRename,
	"set_type":                CollisionRetype,
	"set_variable_type":       CollisionRetype,
	"set_comment":             CollisionComment,
	"set_function_comment":    CollisionComment,
	"set_function_signature":  CollisionSignature,
	"apply_byte_patch":        CollisionPatch,
	"apply_assembly_patch":    CollisionPatch,
	"set_variable":            CollisionVariable,
}

// Store persists tool-call records keyed by the binary's identity, so agents
// that reopen the same binary observe each other's writes (spec §4.4: "a
// small on-disk database keyed by the binary's identity"). The in-process
// Detector keeps no copy of the records: it reads Store on every check, and
// Store is the durable source of truth.
type Store interface {
	Append(record entity.ToolCallRecord) error
	ByAddress(binaryID string, address uint64) ([]entity.ToolCallRecord, error)
}

// memStore is the default in-memory Store, used when no durable backing is
// configured (tests, single-process sessions).
type memStore struct {
	mu      sync.RWMutex
	records []entity.ToolCallRecord
}

// NewMemStore creates an in-memory Store.
func NewMemStore() Store { return &memStore{} }

func (s *memStore) Append(record entity.ToolCallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *memStore) ByAddress(binaryID string, address uint64) ([]entity.ToolCallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.ToolCallRecord
	for _, r := range s.records {
		if r.BinaryID == binaryID && r.Address == address {
			out = append(out, r)
		}
	}
	return out, nil
}

// Detector records tool calls and reports write-conflicts for one binary.
type Detector struct {
	binaryID string
	store    Store
	classOf  map[string]CollisionClass

	mu sync.Mutex
}

// NewDetector creates a Detector scoped to one binary's identity.
func NewDetector(binaryID string, store Store) *Detector {
	classOf := make(map[string]CollisionClass, len(defaultClassOf))
	for k, v := range defaultClassOf {
		classOf[k] = v
	}
	return &Detector{binaryID: binaryID, store: store, classOf: classOf}
}

// RegisterCollisionClass extends the fixed per-tool collision table, for
// deployments whose Tool Registry catalog names write tools differently.
func (d *Detector) RegisterCollisionClass(toolName string, class CollisionClass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classOf[toolName] = class
}

// IsWriteTool reports whether toolName participates in conflict detection.
func (d *Detector) IsWriteTool(toolName string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.classOf[toolName]
	return ok
}

// ClassOf returns the collision class a write tool belongs to, so a caller
// can propose a conflict without duplicating the tool-name table.
func (d *Detector) ClassOf(toolName string) (CollisionClass, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	class, ok := d.classOf[toolName]
	return class, ok
}

// Record appends a tool call to the durable history. Append-only per §4.4.
func (d *Detector) Record(toolName string, address uint64, params map[string]interface{}, agentID string, timestamp time.Time) error {
	return d.store.Append(entity.ToolCallRecord{
		BinaryID:  d.binaryID,
		ToolName:  toolName,
		Address:   address,
		Params:    params,
		AgentID:   agentID,
		Timestamp: timestamp,
	})
}

// CheckConflict returns prior write-records at address by agents other than
// callerAgentID whose tool semantically collides with toolName. Read tools
// (absent from the collision table) never produce conflicts.
func (d *Detector) CheckConflict(toolName string, address uint64, callerAgentID string) ([]entity.ToolCallRecord, error) {
	d.mu.Lock()
	class, isWrite := d.classOf[toolName]
	d.mu.Unlock()
	if !isWrite {
		return nil, nil
	}

	prior, err := d.store.ByAddress(d.binaryID, address)
	if err != nil {
		return nil, err
	}

	var out []entity.ToolCallRecord
	for _, r := range prior {
		if r.AgentID == callerAgentID {
			continue
		}
		d.mu.Lock()
		rc, ok := d.classOf[r.ToolName]
		d.mu.Unlock()
		if !ok || rc != class {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
