package entity

import "time"

// PatchKind discriminates the three patch entry variants.
type PatchKind string

const (
	PatchKindByte             PatchKind = "byte_patch"
	PatchKindAssembly         PatchKind = "assembly_patch"
	PatchKindSegmentInjection PatchKind = "segment_injection"
)

// PatchEntry records one live modification to the host's code view, enough
// to revert it exactly. Indexed by Address.
type PatchEntry struct {
	Address       uint64
	OriginalBytes []byte
	PatchedBytes  []byte
	Description   string
	Timestamp     time.Time
	Kind          PatchKind

	// PatchKindAssembly only.
	OriginalAsm string
	PatchedAsm  string

	// PatchKindSegmentInjection only.
	SegmentName string
	SegmentSize uint64
}
