package patch

// Assembler assembles architecture-specific instruction text into raw
// machine bytes. The host's disassembler/assembler collaborator (spec §6)
// is the real implementation; this interface is the seam the Patch Manager
// depends on, so the manager never imports an architecture-specific
// assembler library directly.
type Assembler interface {
	// Assemble encodes asm for the named architecture at address, returning
	// the machine bytes. NOP returns the architecture's single-byte (or
	// fixed-width) NOP opcode used to pad a shorter replacement.
	Assemble(arch string, address uint64, asm string) ([]byte, error)
	NOP(arch string) []byte
}
