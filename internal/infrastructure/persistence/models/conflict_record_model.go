package models

import "time"

// ConflictRecordModel 冲突检测器的工具调用历史记录
// Durable backing for the Conflict Detector (spec §4.4): one row per
// recorded write attempt, keyed for lookup by (binary_id, address).
type ConflictRecordModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	BinaryID  string `gorm:"index:idx_binary_address;size:128;not null"`
	Address   uint64 `gorm:"index:idx_binary_address"`
	ToolName  string `gorm:"size:128;not null"`
	AgentID   string `gorm:"size:64;not null"`
	Params    string `gorm:"type:text"` // JSON encoded
	CreatedAt time.Time
}

// TableName 指定表名
func (ConflictRecordModel) TableName() string {
	return "conflict_records"
}
