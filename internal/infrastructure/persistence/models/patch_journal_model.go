package models

import "time"

// PatchJournalModel 补丁管理器的持久化审计日志
// A durable mirror of the Patch Manager's live entries (spec §4.2, §6
// Persistence), written after every apply/revert so patch history survives
// a process restart even though the in-memory table is the manager's
// source of truth for what is currently live.
type PatchJournalModel struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	Address       uint64 `gorm:"index;not null"`
	Kind          string `gorm:"size:32;not null"`
	OriginalBytes string `gorm:"type:text"` // hex-encoded
	PatchedBytes  string `gorm:"type:text"` // hex-encoded
	OriginalAsm   string `gorm:"type:text"`
	PatchedAsm    string `gorm:"type:text"`
	SegmentName   string `gorm:"size:128"`
	SegmentSize   uint64
	Description   string `gorm:"type:text"`
	Reverted      bool   `gorm:"index"`
	CreatedAt     time.Time
	RevertedAt    *time.Time
}

// TableName 指定表名
func (PatchJournalModel) TableName() string {
	return "patch_journal"
}
