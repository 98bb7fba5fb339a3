package conflict

import (
	"testing"
	"time"

	"github.com/shells-above/swarmre/internal/domain/entity"
)

// Scenario S3/S4 analogue: two agents reach identical consensus and the
// conflict resolves; divergent payloads instead resume discussion.
func TestCoordinator_ProposeThenResolveOnMatchingConsensus(t *testing.T) {
	c := NewCoordinator(time.Minute)

	initiator := entity.ConflictingCall{AgentID: "agent_b", Tool: "rename_function", Address: 0x401000}
	prior := []entity.ToolCallRecord{{AgentID: "agent_a", ToolName: "rename_function", Address: 0x401000}}

	descriptor, force := c.Propose(CollisionRename, initiator, prior)
	if descriptor.Phase != entity.ConflictDiscussing {
		t.Fatalf("expected new conflict to start Discussing, got %v", descriptor.Phase)
	}
	if force.TargetAgent != "agent_a" {
		t.Fatalf("expected CONFLICT_FORCE addressed to the prior writer, got %q", force.TargetAgent)
	}

	channel := descriptor.Channel

	resolved, payload, err := c.MarkConsensus(channel, "agent_a", "rename to parse_header")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved {
		t.Fatalf("expected no resolution until all participants mark")
	}

	resolved, payload, err = c.MarkConsensus(channel, "agent_b", "rename to parse_header")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resolved {
		t.Fatalf("expected resolution once both payloads match")
	}
	if payload != "rename to parse_header" {
		t.Fatalf("unexpected agreed payload: %q", payload)
	}

	got, _ := c.Get(channel)
	if got.Phase != entity.ConflictResolved {
		t.Fatalf("expected Resolved phase, got %v", got.Phase)
	}
}

func TestCoordinator_DivergentConsensusResumesDiscussion(t *testing.T) {
	c := NewCoordinator(time.Minute)
	initiator := entity.ConflictingCall{AgentID: "agent_b", Tool: "rename_function", Address: 0x401000}
	prior := []entity.ToolCallRecord{{AgentID: "agent_a", ToolName: "rename_function", Address: 0x401000}}
	descriptor, _ := c.Propose(CollisionRename, initiator, prior)
	channel := descriptor.Channel

	c.MarkConsensus(channel, "agent_a", "name_one")
	resolved, _, err := c.MarkConsensus(channel, "agent_b", "name_two")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved {
		t.Fatalf("expected divergent payloads to not resolve")
	}

	got, _ := c.Get(channel)
	if got.Phase != entity.ConflictDiscussing {
		t.Fatalf("expected discussion to resume after divergence, got %v", got.Phase)
	}
	if len(got.ConsensusPayloads) != 0 {
		t.Fatalf("expected consensus payloads cleared after divergence, got %+v", got.ConsensusPayloads)
	}
}

func TestCoordinator_TimeoutAbandonsConflict(t *testing.T) {
	c := NewCoordinator(time.Millisecond)
	initiator := entity.ConflictingCall{AgentID: "agent_b", Tool: "rename_function", Address: 0x401000}
	prior := []entity.ToolCallRecord{{AgentID: "agent_a", ToolName: "rename_function", Address: 0x401000}}
	descriptor, _ := c.Propose(CollisionRename, initiator, prior)

	later := time.Now().Add(time.Hour)
	if !c.CheckTimeout(descriptor.Channel, later) {
		t.Fatalf("expected timeout to abandon the conflict")
	}

	got, _ := c.Get(descriptor.Channel)
	if got.Phase != entity.ConflictAbandoned {
		t.Fatalf("expected Abandoned phase, got %v", got.Phase)
	}
}

func TestCoordinator_MarkConsensusRejectsEmptyPayload(t *testing.T) {
	c := NewCoordinator(time.Minute)
	initiator := entity.ConflictingCall{AgentID: "agent_b", Tool: "rename_function", Address: 0x401000}
	prior := []entity.ToolCallRecord{{AgentID: "agent_a", ToolName: "rename_function", Address: 0x401000}}
	descriptor, _ := c.Propose(CollisionRename, initiator, prior)

	if _, _, err := c.MarkConsensus(descriptor.Channel, "agent_a", "   "); err != entity.ErrConsensusPayloadEmpty {
		t.Fatalf("expected ErrConsensusPayloadEmpty, got %v", err)
	}
}

func TestCoordinator_ChannelNameIsDeterministic(t *testing.T) {
	a := ChannelName(0x401000, CollisionRename)
	b := ChannelName(0x401000, CollisionRename)
	if a != b {
		t.Fatalf("expected deterministic channel naming, got %q vs %q", a, b)
	}
	if a != "#conflict_401000_rename" {
		t.Fatalf("unexpected channel name: %q", a)
	}
}
