package retool

import (
	"github.com/shells-above/swarmre/internal/domain/conflict"
	"github.com/shells-above/swarmre/internal/domain/memory"
	"github.com/shells-above/swarmre/internal/domain/patch"
	"github.com/shells-above/swarmre/internal/domain/rehost"
	domaintool "github.com/shells-above/swarmre/internal/domain/tool"
	"go.uber.org/zap"
)

// Deps aggregates everything the RE-orchestrator's tool catalog needs.
// This is the single configuration point for the tool layer.
type Deps struct {
	Registry domaintool.Registry
	Logger   *zap.Logger

	Host          rehost.Host
	PatchManager  *patch.Manager
	MemoryStore   *memory.Store
	Detector      *conflict.Detector
	Coordinator   *conflict.Coordinator
	Outbox        Outbox
	ActiveConflict ActiveConflict
	AgentID       string

	// Disasm is shared with the Patch Manager's Host seam; narrower than
	// rehost.Host so the disassemble tool doesn't need the full interface.
	Disasm func(address uint64, byteLen int) (string, error)
}

// RegisterAllTools registers the full RE-orchestrator tool catalog in a
// fixed order (spec §4.1: registration order drives prompt-cache
// stability). Adding a new tool? Add it here.
//
// Registration order:
//  1. Read-only host queries (list/search/xrefs/disassemble/decompile)
//  2. Write tools (rename, comment, signature, variable)
//  3. Patch tools (byte/assembly/segment/revert/list)
//  4. Memory tools (store/get analysis)
//  5. Coordination tools (send message, mark consensus)
func RegisterAllTools(deps Deps) int {
	var tools []domaintool.Tool

	tools = append(tools,
		NewListFunctionsTool(deps.Host, deps.Logger),
		NewSearchFunctionsTool(deps.Host, deps.Logger),
		NewGetXRefsTool(deps.Host, deps.Logger),
		NewDisassembleTool(deps.Disasm, deps.Logger),
		NewDecompileTool(deps.Host, deps.Logger),
	)

	tools = append(tools,
		NewRenameFunctionTool(deps.Host, deps.Logger),
		NewSetCommentTool(deps.Host, deps.Logger),
		NewSetFunctionSignatureTool(deps.Host, deps.Logger),
		NewRenameVariableTool(deps.Host, deps.Logger),
		NewSetVariableTypeTool(deps.Host, deps.Logger),
	)

	tools = append(tools,
		NewApplyBytePatchTool(deps.PatchManager, deps.Logger),
		NewApplyAssemblyPatchTool(deps.PatchManager, deps.Logger),
		NewApplySegmentInjectionTool(deps.PatchManager, deps.Logger),
		NewRevertPatchTool(deps.PatchManager, deps.Logger),
		NewListPatchesTool(deps.PatchManager, deps.Logger),
	)

	tools = append(tools,
		NewStoreAnalysisTool(deps.MemoryStore, deps.Logger),
		NewGetAnalysisTool(deps.MemoryStore, deps.Logger),
	)

	if deps.Outbox != nil {
		tools = append(tools, NewSendMessageTool(deps.Outbox, deps.Logger))
		if deps.Coordinator != nil && deps.ActiveConflict != nil && deps.Detector != nil {
			tools = append(tools, NewMarkConsensusReachedTool(deps.Coordinator, deps.Detector, deps.Outbox, deps.ActiveConflict, deps.Host, deps.MemoryStore, deps.AgentID, deps.Logger))
		}
	}

	registered := 0
	for _, t := range tools {
		if err := deps.Registry.Register(t); err != nil {
			deps.Logger.Warn("failed to register tool", zap.String("tool", t.Name()), zap.Error(err))
			continue
		}
		registered++
	}

	deps.Logger.Info("RE tool catalog registered", zap.Int("total", registered))
	return registered
}
