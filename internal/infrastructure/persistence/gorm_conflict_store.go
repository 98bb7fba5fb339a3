package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/shells-above/swarmre/internal/domain/conflict"
	"github.com/shells-above/swarmre/internal/domain/entity"
	"github.com/shells-above/swarmre/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormConflictStore GORM 实现的冲突记录仓储
// Gives the Conflict Detector a durable store shared across agent processes
// that open the same binary (spec §4.4).
type GormConflictStore struct {
	db *gorm.DB
}

// NewGormConflictStore creates a durable conflict.Store backed by db.
func NewGormConflictStore(db *gorm.DB) conflict.Store {
	return &GormConflictStore{db: db}
}

func (s *GormConflictStore) Append(record entity.ToolCallRecord) error {
	paramsJSON, err := json.Marshal(record.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	model := &models.ConflictRecordModel{
		BinaryID:  record.BinaryID,
		Address:   record.Address,
		ToolName:  record.ToolName,
		AgentID:   record.AgentID,
		Params:    string(paramsJSON),
		CreatedAt: record.Timestamp,
	}
	return s.db.Create(model).Error
}

func (s *GormConflictStore) ByAddress(binaryID string, address uint64) ([]entity.ToolCallRecord, error) {
	var rows []models.ConflictRecordModel
	if err := s.db.Where("binary_id = ? AND address = ?", binaryID, address).
		Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query conflict records: %w", err)
	}

	out := make([]entity.ToolCallRecord, 0, len(rows))
	for _, r := range rows {
		var params map[string]interface{}
		if r.Params != "" {
			if err := json.Unmarshal([]byte(r.Params), &params); err != nil {
				return nil, fmt.Errorf("decode params for record %d: %w", r.ID, err)
			}
		}
		out = append(out, entity.ToolCallRecord{
			BinaryID:  r.BinaryID,
			ToolName:  r.ToolName,
			Address:   r.Address,
			Params:    params,
			AgentID:   r.AgentID,
			Timestamp: r.CreatedAt,
		})
	}
	return out, nil
}
