package retool

import (
	"context"
	"fmt"

	"github.com/shells-above/swarmre/internal/domain/conflict"
	"github.com/shells-above/swarmre/internal/domain/entity"
	"github.com/shells-above/swarmre/internal/domain/memory"
	"github.com/shells-above/swarmre/internal/domain/rehost"
	domaintool "github.com/shells-above/swarmre/internal/domain/tool"
	"go.uber.org/zap"
)

// Outbox is the narrow send-side of the Coordination Client (spec §4.9)
// that the coordination tools depend on.
type Outbox interface {
	Send(channel, text string) error
}

// ActiveConflict exposes the calling agent's currently-active conflict
// channel, if any (original_source's has_active_conflict/get_conflict_channel).
type ActiveConflict interface {
	CurrentConflictChannel() (string, bool)
}

// SendMessageTool posts free-form text to a coordination channel.
type SendMessageTool struct {
	outbox Outbox
	logger *zap.Logger
}

func NewSendMessageTool(outbox Outbox, logger *zap.Logger) *SendMessageTool {
	return &SendMessageTool{outbox: outbox, logger: logger}
}

func (t *SendMessageTool) Name() string        { return "send_message" }
func (t *SendMessageTool) Description() string { return "Send a message to a coordination channel." }
func (t *SendMessageTool) Kind() domaintool.Kind { return domaintool.KindCommunicate }
func (t *SendMessageTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"channel": strProp("channel to send to, e.g. '#agents' or '#conflict_401000_rename'"),
		"text":    strProp("message text"),
	}, "channel", "text")
}

func (t *SendMessageTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	channel, err := stringArg(args, "channel")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	text, err := stringArg(args, "text")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	if err := t.outbox.Send(channel, text); err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: "sent"}, nil
}

// MarkConsensusReachedTool implements the mandatory consensus-assent tool
// (spec §4.10), grounded on original_source/agent/agent_irc_tools.h's
// mark_consensus_reached: requires an active conflict, broadcasts
// MARKED_CONSENSUS on the conflict channel, and records the agent's payload
// with the Conflict Coordinator. Once every participant has marked an
// identical payload, the originally-conflicting write is re-executed
// against the host using the agreed text, per the collision class of the
// tool that started the conflict — except CollisionPatch, whose byte/
// assembly edits can't be derived from free consensus text; those are
// instead recorded as a memory note for a follow-up apply_byte_patch call.
type MarkConsensusReachedTool struct {
	coordinator *conflict.Coordinator
	detector    *conflict.Detector
	outbox      Outbox
	active      ActiveConflict
	host        rehost.Host
	memory      *memory.Store
	agentID     string
	logger      *zap.Logger
}

func NewMarkConsensusReachedTool(coordinator *conflict.Coordinator, detector *conflict.Detector, outbox Outbox, active ActiveConflict, host rehost.Host, memoryStore *memory.Store, agentID string, logger *zap.Logger) *MarkConsensusReachedTool {
	return &MarkConsensusReachedTool{
		coordinator: coordinator,
		detector:    detector,
		outbox:      outbox,
		active:      active,
		host:        host,
		memory:      memoryStore,
		agentID:     agentID,
		logger:      logger,
	}
}

func (t *MarkConsensusReachedTool) Name() string { return "mark_consensus_reached" }
func (t *MarkConsensusReachedTool) Description() string {
	return "Mark that consensus has been reached in the active conflict discussion. " +
		"ALL agents involved must call this with byte-identical payload text for the conflict to resolve."
}
func (t *MarkConsensusReachedTool) Kind() domaintool.Kind { return domaintool.KindCommunicate }
func (t *MarkConsensusReachedTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"payload": strProp("the exact agreed-upon resolution; must match byte-for-byte (after trimming) what every other participant submits"),
	}, "payload")
}

func (t *MarkConsensusReachedTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	channel, active := t.active.CurrentConflictChannel()
	if !active {
		return &domaintool.Result{Success: false, Error: "No active conflict to mark consensus for"}, nil
	}
	payload, err := stringArg(args, "payload")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	frame := fmt.Sprintf("MARKED_CONSENSUS|%s|%s", t.agentID, payload)
	if err := t.outbox.Send(channel, frame); err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	resolved, agreed, err := t.coordinator.MarkConsensus(channel, t.agentID, payload)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	if !resolved {
		return &domaintool.Result{Success: true, Output: "consensus marked, waiting on other participants", Metadata: map[string]interface{}{"resolved": false}}, nil
	}

	applyErr := t.reapply(channel, agreed)
	out := "consensus reached: " + agreed
	meta := map[string]interface{}{"resolved": true, "payload": agreed}
	if applyErr != nil {
		t.logger.Error("failed to re-apply consensus payload to host", zap.String("channel", channel), zap.Error(applyErr))
		out += " (re-apply failed: " + applyErr.Error() + ")"
		meta["reapply_error"] = applyErr.Error()
	}
	return &domaintool.Result{Success: true, Output: out, Metadata: meta}, nil
}

// reapply re-executes the originally-conflicting write using the agreed
// consensus payload, dispatched per the write's collision class.
func (t *MarkConsensusReachedTool) reapply(channel, payload string) error {
	descriptor, ok := t.coordinator.Get(channel)
	if !ok {
		return fmt.Errorf("conflict descriptor for %s no longer available", channel)
	}
	call := descriptor.CallB
	if call.Tool == "" {
		call = descriptor.CallA
	}
	class, ok := t.detector.ClassOf(call.Tool)
	if !ok {
		return fmt.Errorf("unknown collision class for tool %q", call.Tool)
	}

	variable, _ := call.Params["variable"].(string)

	switch class {
	case conflict.CollisionRename:
		if variable != "" {
			return t.host.RenameVariable(call.Address, variable, payload)
		}
		return t.host.RenameFunction(call.Address, payload)
	case conflict.CollisionComment:
		return t.host.SetComment(call.Address, payload)
	case conflict.CollisionSignature:
		return t.host.SetFunctionSignature(call.Address, payload)
	case conflict.CollisionRetype, conflict.CollisionVariable:
		if variable == "" {
			return fmt.Errorf("consensus payload for %s has no variable name to retype", channel)
		}
		return t.host.SetVariableType(call.Address, variable, payload)
	case conflict.CollisionPatch:
		if t.memory == nil {
			return fmt.Errorf("patch consensus for %s reached but no memory store configured to record it", channel)
		}
		_, err := t.memory.Store(
			fmt.Sprintf("consensus_patch_%x", call.Address),
			fmt.Sprintf("Agreed patch payload for %s: %s", channel, payload),
			entity.CategoryFinding, &call.Address, nil,
		)
		return err
	default:
		return fmt.Errorf("no re-apply rule for collision class %q", class)
	}
}
