package retool

import (
	"context"

	"github.com/shells-above/swarmre/internal/domain/rehost"
	domaintool "github.com/shells-above/swarmre/internal/domain/tool"
	"go.uber.org/zap"
)

// RenameFunctionTool renames a function at an address. A write tool — the
// LLM Driver records and conflict-checks it before dispatch (spec §4.5
// step 7a/7b), not the tool itself.
type RenameFunctionTool struct {
	host   rehost.Host
	logger *zap.Logger
}

func NewRenameFunctionTool(host rehost.Host, logger *zap.Logger) *RenameFunctionTool {
	return &RenameFunctionTool{host: host, logger: logger}
}

func (t *RenameFunctionTool) Name() string        { return "rename_function" }
func (t *RenameFunctionTool) Description() string { return "Rename the function at an address." }
func (t *RenameFunctionTool) Kind() domaintool.Kind { return domaintool.KindEdit }
func (t *RenameFunctionTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"address":  intProp("function address"),
		"new_name": strProp("new function name"),
	}, "address", "new_name")
}

func (t *RenameFunctionTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	addr, err := addressArg(args)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	name, err := stringArg(args, "new_name")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	if err := t.host.RenameFunction(addr, name); err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: "renamed"}, nil
}

// SetCommentTool attaches a comment to an address.
type SetCommentTool struct {
	host   rehost.Host
	logger *zap.Logger
}

func NewSetCommentTool(host rehost.Host, logger *zap.Logger) *SetCommentTool {
	return &SetCommentTool{host: host, logger: logger}
}

func (t *SetCommentTool) Name() string        { return "set_comment" }
func (t *SetCommentTool) Description() string { return "Set a comment at an address." }
func (t *SetCommentTool) Kind() domaintool.Kind { return domaintool.KindEdit }
func (t *SetCommentTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"address": intProp("address to comment"),
		"text":    strProp("comment text"),
	}, "address", "text")
}

func (t *SetCommentTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	addr, err := addressArg(args)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	text, err := stringArg(args, "text")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	if err := t.host.SetComment(addr, text); err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: "comment set"}, nil
}

// SetFunctionSignatureTool rewrites a function's declared signature.
type SetFunctionSignatureTool struct {
	host   rehost.Host
	logger *zap.Logger
}

func NewSetFunctionSignatureTool(host rehost.Host, logger *zap.Logger) *SetFunctionSignatureTool {
	return &SetFunctionSignatureTool{host: host, logger: logger}
}

func (t *SetFunctionSignatureTool) Name() string { return "set_function_signature" }
func (t *SetFunctionSignatureTool) Description() string {
	return "Set the declared signature of a function."
}
func (t *SetFunctionSignatureTool) Kind() domaintool.Kind { return domaintool.KindEdit }
func (t *SetFunctionSignatureTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"address":   intProp("function address"),
		"signature": strProp("new C-style signature, e.g. 'int foo(char *buf, size_t n)'"),
	}, "address", "signature")
}

func (t *SetFunctionSignatureTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	addr, err := addressArg(args)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	sig, err := stringArg(args, "signature")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	if err := t.host.SetFunctionSignature(addr, sig); err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: "signature set"}, nil
}

// RenameVariableTool renames a local variable within a function.
type RenameVariableTool struct {
	host   rehost.Host
	logger *zap.Logger
}

func NewRenameVariableTool(host rehost.Host, logger *zap.Logger) *RenameVariableTool {
	return &RenameVariableTool{host: host, logger: logger}
}

func (t *RenameVariableTool) Name() string        { return "rename_variable" }
func (t *RenameVariableTool) Description() string { return "Rename a local variable within a function." }
func (t *RenameVariableTool) Kind() domaintool.Kind { return domaintool.KindEdit }
func (t *RenameVariableTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"function_address": intProp("address of the containing function"),
		"variable":         strProp("current variable name"),
		"new_name":         strProp("new variable name"),
	}, "function_address", "variable", "new_name")
}

func (t *RenameVariableTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	funcAddrVal, ok := args["function_address"]
	if !ok {
		return &domaintool.Result{Success: false, Error: "missing required field: function_address"}, nil
	}
	funcAddr, err := toAddress(funcAddrVal)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	variable, err := stringArg(args, "variable")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	newName, err := stringArg(args, "new_name")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	if err := t.host.RenameVariable(funcAddr, variable, newName); err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: "variable renamed"}, nil
}

// SetVariableTypeTool retypes a local variable within a function.
type SetVariableTypeTool struct {
	host   rehost.Host
	logger *zap.Logger
}

func NewSetVariableTypeTool(host rehost.Host, logger *zap.Logger) *SetVariableTypeTool {
	return &SetVariableTypeTool{host: host, logger: logger}
}

func (t *SetVariableTypeTool) Name() string        { return "set_variable_type" }
func (t *SetVariableTypeTool) Description() string { return "Change the declared type of a local variable." }
func (t *SetVariableTypeTool) Kind() domaintool.Kind { return domaintool.KindEdit }
func (t *SetVariableTypeTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"function_address": intProp("address of the containing function"),
		"variable":         strProp("variable name"),
		"new_type":         strProp("new C-style type"),
	}, "function_address", "variable", "new_type")
}

func (t *SetVariableTypeTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	funcAddrVal, ok := args["function_address"]
	if !ok {
		return &domaintool.Result{Success: false, Error: "missing required field: function_address"}, nil
	}
	funcAddr, err := toAddress(funcAddrVal)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	variable, err := stringArg(args, "variable")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	newType, err := stringArg(args, "new_type")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	if err := t.host.SetVariableType(funcAddr, variable, newType); err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: "variable retyped"}, nil
}

func toAddress(v interface{}) (uint64, error) {
	return addressArg(map[string]interface{}{"address": v})
}
