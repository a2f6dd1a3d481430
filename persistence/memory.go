package persistence

import (
	"context"
	"sync"

	"github.com/wfunc/bb84server/models"
)

// Memory keeps records in process. With a positive capacity the oldest
// records are dropped once it is exceeded.
type Memory struct {
	mu       sync.RWMutex
	records  []models.RoundRecord
	capacity int
}

func NewMemory(capacity int) *Memory {
	return &Memory{capacity: capacity}
}

func (m *Memory) SaveRound(ctx context.Context, record models.RoundRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, record)
	if m.capacity > 0 && len(m.records) > m.capacity {
		m.records = append([]models.RoundRecord(nil), m.records[len(m.records)-m.capacity:]...)
	}
	return nil
}

func (m *Memory) ListRounds(ctx context.Context, limit int) ([]models.RoundRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if limit > 0 && len(m.records) > limit {
		start = len(m.records) - limit
	}
	out := make([]models.RoundRecord, len(m.records)-start)
	copy(out, m.records[start:])
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
