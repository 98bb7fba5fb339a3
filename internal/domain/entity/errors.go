package entity

import "errors"

var (
	// Agent errors
	ErrInvalidAgentID   = errors.New("invalid agent id")
	ErrInvalidAgentName = errors.New("invalid agent name")

	// Message errors
	ErrInvalidMessageID = errors.New("invalid message id")
	ErrEmptyRole        = errors.New("message role must not be empty")

	// Memory Store errors
	ErrAnalysisKeyEmpty = errors.New("analysis key must not be empty")
	ErrAnalysisNotFound  = errors.New("analysis entry not found")

	// Patch Manager errors
	ErrPatchDescriptionEmpty  = errors.New("patch description must not be empty")
	ErrPatchAddressInvalid    = errors.New("patch address invalid")
	ErrPatchBytesMismatch     = errors.New("current bytes do not match expected original bytes")
	ErrPatchInstructionBounds = errors.New("address does not fall on an instruction boundary")
	ErrPatchAssembleFailed    = errors.New("assembly failed for target architecture")
	ErrPatchTooLong           = errors.New("patched region longer than the instructions it replaces")
	ErrPatchNotFound          = errors.New("no live patch entry at address")

	// Conflict Coordinator errors
	ErrConflictNotFound       = errors.New("conflict descriptor not found")
	ErrConflictAlreadyClosed  = errors.New("conflict already resolved or abandoned")
	ErrConsensusPayloadEmpty  = errors.New("consensus payload must not be empty")

	// LLM Driver errors
	ErrMaxIterationsReached = errors.New("agent reached its maximum iteration count without finishing")
	ErrExecutionStateInvalid = errors.New("execution state is no longer valid for resume")
	ErrNoTask                = errors.New("agent has no task to run")

	// Debugger Broker Client errors
	ErrDebuggerRequestTimeout = errors.New("debugger broker did not respond before the deadline")
)
