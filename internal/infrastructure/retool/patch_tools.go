package retool

import (
	"context"
	"fmt"

	"github.com/shells-above/swarmre/internal/domain/patch"
	domaintool "github.com/shells-above/swarmre/internal/domain/tool"
	"go.uber.org/zap"
)

// ApplyBytePatchTool wraps patch.Manager.ApplyBytePatch (spec §4.2).
type ApplyBytePatchTool struct {
	manager *patch.Manager
	logger  *zap.Logger
}

func NewApplyBytePatchTool(manager *patch.Manager, logger *zap.Logger) *ApplyBytePatchTool {
	return &ApplyBytePatchTool{manager: manager, logger: logger}
}

func (t *ApplyBytePatchTool) Name() string        { return "apply_byte_patch" }
func (t *ApplyBytePatchTool) Description() string { return "Apply a verified raw byte patch at an address." }
func (t *ApplyBytePatchTool) Kind() domaintool.Kind { return domaintool.KindEdit }
func (t *ApplyBytePatchTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"address":      intProp("address to patch"),
		"original_hex": strProp("expected current bytes, as hex"),
		"new_hex":      strProp("replacement bytes, as hex"),
		"description":  strProp("human-readable reason for the patch"),
	}, "address", "original_hex", "new_hex", "description")
}

func (t *ApplyBytePatchTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	addr, err := addressArg(args)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	originalHex, err := stringArg(args, "original_hex")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	newHex, err := stringArg(args, "new_hex")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	entry, err := t.manager.ApplyBytePatch(addr, originalHex, newHex, description)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: "byte patch applied", Metadata: map[string]interface{}{"address": entry.Address}}, nil
}

// ApplyAssemblyPatchTool wraps patch.Manager.ApplyAssemblyPatch.
type ApplyAssemblyPatchTool struct {
	manager *patch.Manager
	logger  *zap.Logger
}

func NewApplyAssemblyPatchTool(manager *patch.Manager, logger *zap.Logger) *ApplyAssemblyPatchTool {
	return &ApplyAssemblyPatchTool{manager: manager, logger: logger}
}

func (t *ApplyAssemblyPatchTool) Name() string { return "apply_assembly_patch" }
func (t *ApplyAssemblyPatchTool) Description() string {
	return "Assemble and apply a verified instruction-level patch at an address."
}
func (t *ApplyAssemblyPatchTool) Kind() domaintool.Kind { return domaintool.KindEdit }
func (t *ApplyAssemblyPatchTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"address":      intProp("address to patch"),
		"original_asm": strProp("expected current disassembly"),
		"new_asm":      strProp("replacement assembly text"),
		"description":  strProp("human-readable reason for the patch"),
	}, "address", "original_asm", "new_asm", "description")
}

func (t *ApplyAssemblyPatchTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	addr, err := addressArg(args)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	originalAsm, err := stringArg(args, "original_asm")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	newAsm, err := stringArg(args, "new_asm")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	entry, err := t.manager.ApplyAssemblyPatch(addr, originalAsm, newAsm, description)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: "assembly patch applied", Metadata: map[string]interface{}{"address": entry.Address}}, nil
}

// ApplySegmentInjectionTool wraps patch.Manager.ApplySegmentInjection.
type ApplySegmentInjectionTool struct {
	manager *patch.Manager
	logger  *zap.Logger
}

func NewApplySegmentInjectionTool(manager *patch.Manager, logger *zap.Logger) *ApplySegmentInjectionTool {
	return &ApplySegmentInjectionTool{manager: manager, logger: logger}
}

func (t *ApplySegmentInjectionTool) Name() string { return "apply_segment_injection" }
func (t *ApplySegmentInjectionTool) Description() string {
	return "Create a new code segment and inject assembled bytes into it."
}
func (t *ApplySegmentInjectionTool) Kind() domaintool.Kind { return domaintool.KindEdit }
func (t *ApplySegmentInjectionTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"size":        intProp("segment size in bytes"),
		"code_hex":    strProp("machine code to inject, as hex"),
		"name":        strProp("segment name"),
		"description": strProp("human-readable reason for the injection"),
	}, "size", "code_hex", "name", "description")
}

func (t *ApplySegmentInjectionTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	sizeVal, ok := args["size"]
	if !ok {
		return &domaintool.Result{Success: false, Error: "missing required field: size"}, nil
	}
	size, err := toAddress(sizeVal)
	if err != nil {
		return &domaintool.Result{Success: false, Error: "size must be a number"}, nil
	}
	codeHex, err := stringArg(args, "code_hex")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	name, err := stringArg(args, "name")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	code, err := patch.HexStringToBytes(codeHex)
	if err != nil {
		return &domaintool.Result{Success: false, Error: "invalid code_hex: " + err.Error()}, nil
	}

	entry, err := t.manager.ApplySegmentInjection(size, code, name, description)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: "segment injected", Metadata: map[string]interface{}{"base_address": entry.Address}}, nil
}

// RevertPatchTool wraps patch.Manager.RevertPatch.
type RevertPatchTool struct {
	manager *patch.Manager
	logger  *zap.Logger
}

func NewRevertPatchTool(manager *patch.Manager, logger *zap.Logger) *RevertPatchTool {
	return &RevertPatchTool{manager: manager, logger: logger}
}

func (t *RevertPatchTool) Name() string        { return "revert_patch" }
func (t *RevertPatchTool) Description() string { return "Revert a previously applied patch at an address." }
func (t *RevertPatchTool) Kind() domaintool.Kind { return domaintool.KindEdit }
func (t *RevertPatchTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{"address": intProp("address of the patch to revert")}, "address")
}

func (t *RevertPatchTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	addr, err := addressArg(args)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	if err := t.manager.RevertPatch(addr); err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: "patch reverted"}, nil
}

// ListPatchesTool is a pure read over the live patch table.
type ListPatchesTool struct {
	manager *patch.Manager
	logger  *zap.Logger
}

func NewListPatchesTool(manager *patch.Manager, logger *zap.Logger) *ListPatchesTool {
	return &ListPatchesTool{manager: manager, logger: logger}
}

func (t *ListPatchesTool) Name() string        { return "list_patches" }
func (t *ListPatchesTool) Description() string { return "List all currently live patches." }
func (t *ListPatchesTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *ListPatchesTool) Schema() map[string]interface{} { return schemaObject(nil) }

func (t *ListPatchesTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	entries := t.manager.ListPatches()
	out := ""
	for _, e := range entries {
		out += fmt.Sprintf("0x%x\t%s\t(%s)\n", e.Address, e.Description, e.Kind)
	}
	return &domaintool.Result{Success: true, Output: out, Metadata: map[string]interface{}{"count": len(entries)}}, nil
}
