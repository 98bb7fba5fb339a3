package patch

// Host is the subset of the external host disassembler's contract (spec §6)
// that the Patch Manager depends on for mutation and verification.
type Host interface {
	// Architecture reports the target architecture name (e.g. "x86_64", "arm64").
	Architecture() string

	// ReadBytes returns the n bytes currently at address.
	ReadBytes(address uint64, n int) ([]byte, error)

	// WriteBytes overwrites the bytes at address. Caller has already verified.
	WriteBytes(address uint64, data []byte) error

	// Disassemble returns the normalized-free disassembly text of the
	// instructions spanning exactly byteLen bytes starting at address.
	Disassemble(address uint64, byteLen int) (string, error)

	// IsInstructionBoundary reports whether address is the start of an
	// instruction (not mid-instruction).
	IsInstructionBoundary(address uint64) bool

	// InstructionLength returns the byte length of the instruction(s)
	// spanning at least minBytes starting at address, rounded up to the
	// next instruction boundary.
	InstructionLength(address uint64, minBytes int) (int, error)

	// CreateSegment creates a new code region of size bytes named name,
	// loaded with code, and returns its base address.
	CreateSegment(name string, size uint64, code []byte) (uint64, error)

	// RemoveSegment removes a previously created segment.
	RemoveSegment(name string) error

	// BinaryPath returns the on-disk path of the binary, or "" if unknown
	// (e.g. a live, un-persisted session).
	BinaryPath() string

	// AddSegmentToFile persists a new segment into the on-disk binary file.
	AddSegmentToFile(path, name string, size uint64, code []byte) error
}
