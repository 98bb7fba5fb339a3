package persistence

import (
	"time"

	"github.com/shells-above/swarmre/internal/domain/entity"
	"github.com/shells-above/swarmre/internal/domain/patch"
	"github.com/shells-above/swarmre/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// PatchJournal GORM 实现的补丁审计日志
// Satisfies patch.Journal; the Patch Manager calls it after every mutating
// operation so the on-disk audit trail survives a process restart.
type PatchJournal struct {
	db *gorm.DB
}

// NewPatchJournal creates a durable patch.Journal backed by db.
func NewPatchJournal(db *gorm.DB) patch.Journal {
	return &PatchJournal{db: db}
}

func (j *PatchJournal) RecordApplied(entry entity.PatchEntry) error {
	model := &models.PatchJournalModel{
		Address:       entry.Address,
		Kind:          string(entry.Kind),
		OriginalBytes: patch.BytesToHexString(entry.OriginalBytes),
		PatchedBytes:  patch.BytesToHexString(entry.PatchedBytes),
		OriginalAsm:   entry.OriginalAsm,
		PatchedAsm:    entry.PatchedAsm,
		SegmentName:   entry.SegmentName,
		SegmentSize:   entry.SegmentSize,
		Description:   entry.Description,
		CreatedAt:     entry.Timestamp,
	}
	return j.db.Create(model).Error
}

func (j *PatchJournal) RecordReverted(address uint64) error {
	now := time.Now()
	return j.db.Model(&models.PatchJournalModel{}).
		Where("address = ? AND reverted = ?", address, false).
		Updates(map[string]interface{}{"reverted": true, "reverted_at": &now}).Error
}
