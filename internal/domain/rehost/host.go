// Package rehost defines the broader external-host contract (spec §6) that
// the Tool Registry's binary-analysis tools depend on, beyond the narrower
// patch.Host seam the Patch Manager uses for mutation/verification.
package rehost

// FunctionInfo summarizes one function the host knows about.
type FunctionInfo struct {
	Address uint64
	Name    string
	Size    uint64
}

// XRef is one cross-reference to or from an address.
type XRef struct {
	From uint64
	To   uint64
	Kind string // call, jump, data
}

// Host is the query/mutation surface of the external binary-analysis host
// (out of scope per spec §1; specified here only as the contract the Tool
// Registry's concrete tools call through).
type Host interface {
	// BinaryID identifies the binary for Conflict Detector scoping.
	BinaryID() string

	ListFunctions() ([]FunctionInfo, error)
	SearchFunctions(pattern string) ([]FunctionInfo, error)
	GetXRefs(address uint64) ([]XRef, error)
	Decompile(address uint64) (string, error)

	RenameFunction(address uint64, newName string) error
	SetComment(address uint64, text string) error
	SetFunctionSignature(address uint64, signature string) error
	RenameVariable(funcAddress uint64, variable, newName string) error
	SetVariableType(funcAddress uint64, variable, newType string) error
}
