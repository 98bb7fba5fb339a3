// Package retool adapts the Tool Registry (internal/domain/tool) into the
// concrete catalog of binary-analysis, patching, memory, and coordination
// tools the RE orchestrator's agents call (spec §4.1, §6).
package retool

import (
	"context"
	"fmt"

	"github.com/shells-above/swarmre/internal/domain/rehost"
	domaintool "github.com/shells-above/swarmre/internal/domain/tool"
	"go.uber.org/zap"
)

func schemaObject(props map[string]interface{}, required ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func intProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": desc}
}

func strProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func addressArg(args map[string]interface{}) (uint64, error) {
	v, ok := args["address"]
	if !ok {
		return 0, fmt.Errorf("missing required field: address")
	}
	switch n := v.(type) {
	case float64:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	case int64:
		return uint64(n), nil
	case uint64:
		return n, nil
	default:
		return 0, fmt.Errorf("address must be a number")
	}
}

func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required field: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

// ListFunctionsTool enumerates every function the host knows about.
type ListFunctionsTool struct {
	host   rehost.Host
	logger *zap.Logger
}

func NewListFunctionsTool(host rehost.Host, logger *zap.Logger) *ListFunctionsTool {
	return &ListFunctionsTool{host: host, logger: logger}
}

func (t *ListFunctionsTool) Name() string        { return "list_functions" }
func (t *ListFunctionsTool) Description() string { return "List all functions known to the host." }
func (t *ListFunctionsTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *ListFunctionsTool) Schema() map[string]interface{} { return schemaObject(nil) }

func (t *ListFunctionsTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	fns, err := t.host.ListFunctions()
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	out := ""
	for _, f := range fns {
		out += fmt.Sprintf("0x%x\t%s\t(%d bytes)\n", f.Address, f.Name, f.Size)
	}
	return &domaintool.Result{Success: true, Output: out, Metadata: map[string]interface{}{"count": len(fns)}}, nil
}

// SearchFunctionsTool filters functions by a name pattern.
type SearchFunctionsTool struct {
	host   rehost.Host
	logger *zap.Logger
}

func NewSearchFunctionsTool(host rehost.Host, logger *zap.Logger) *SearchFunctionsTool {
	return &SearchFunctionsTool{host: host, logger: logger}
}

func (t *SearchFunctionsTool) Name() string        { return "search_functions" }
func (t *SearchFunctionsTool) Description() string { return "Search functions by a name pattern." }
func (t *SearchFunctionsTool) Kind() domaintool.Kind { return domaintool.KindSearch }
func (t *SearchFunctionsTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{"pattern": strProp("substring or regex to match against function names")}, "pattern")
}

func (t *SearchFunctionsTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	pattern, err := stringArg(args, "pattern")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	fns, err := t.host.SearchFunctions(pattern)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	out := ""
	for _, f := range fns {
		out += fmt.Sprintf("0x%x\t%s\n", f.Address, f.Name)
	}
	return &domaintool.Result{Success: true, Output: out, Metadata: map[string]interface{}{"count": len(fns)}}, nil
}

// GetXRefsTool lists cross-references to/from an address.
type GetXRefsTool struct {
	host   rehost.Host
	logger *zap.Logger
}

func NewGetXRefsTool(host rehost.Host, logger *zap.Logger) *GetXRefsTool {
	return &GetXRefsTool{host: host, logger: logger}
}

func (t *GetXRefsTool) Name() string        { return "get_xrefs" }
func (t *GetXRefsTool) Description() string { return "List cross-references to and from an address." }
func (t *GetXRefsTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *GetXRefsTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{"address": intProp("address to query")}, "address")
}

func (t *GetXRefsTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	addr, err := addressArg(args)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	refs, err := t.host.GetXRefs(addr)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	out := ""
	for _, r := range refs {
		out += fmt.Sprintf("0x%x -> 0x%x (%s)\n", r.From, r.To, r.Kind)
	}
	return &domaintool.Result{Success: true, Output: out, Metadata: map[string]interface{}{"count": len(refs)}}, nil
}

// DisassembleTool renders the instructions at an address.
type DisassembleTool struct {
	host   rehost.Host
	disasm func(address uint64, byteLen int) (string, error)
	logger *zap.Logger
}

// NewDisassembleTool takes the narrower disassemble function directly
// (shared with patch.Host) since rehost.Host does not duplicate it.
func NewDisassembleTool(disasm func(address uint64, byteLen int) (string, error), logger *zap.Logger) *DisassembleTool {
	return &DisassembleTool{disasm: disasm, logger: logger}
}

func (t *DisassembleTool) Name() string        { return "disassemble" }
func (t *DisassembleTool) Description() string { return "Disassemble a byte range starting at an address." }
func (t *DisassembleTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *DisassembleTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"address": intProp("start address"),
		"length":  intProp("number of bytes to disassemble"),
	}, "address", "length")
}

func (t *DisassembleTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	addr, err := addressArg(args)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	lengthVal, ok := args["length"]
	if !ok {
		return &domaintool.Result{Success: false, Error: "missing required field: length"}, nil
	}
	length, ok := lengthVal.(float64)
	if !ok {
		return &domaintool.Result{Success: false, Error: "length must be a number"}, nil
	}
	text, err := t.disasm(addr, int(length))
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: text}, nil
}

// DecompileTool renders pseudocode for a function.
type DecompileTool struct {
	host   rehost.Host
	logger *zap.Logger
}

func NewDecompileTool(host rehost.Host, logger *zap.Logger) *DecompileTool {
	return &DecompileTool{host: host, logger: logger}
}

func (t *DecompileTool) Name() string        { return "decompile" }
func (t *DecompileTool) Description() string { return "Decompile the function containing an address." }
func (t *DecompileTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *DecompileTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{"address": intProp("any address within the function")}, "address")
}

func (t *DecompileTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	addr, err := addressArg(args)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	text, err := t.host.Decompile(addr)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: text}, nil
}
