package patch

import "github.com/shells-above/swarmre/internal/domain/entity"

// Journal is an optional durable audit mirror of the Manager's live patch
// table (spec §6 Persistence). A nil Journal disables mirroring entirely;
// the Manager's in-memory table remains the sole source of truth for what
// is currently applied.
type Journal interface {
	RecordApplied(entry entity.PatchEntry) error
	RecordReverted(address uint64) error
}
