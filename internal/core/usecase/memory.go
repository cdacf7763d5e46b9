package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrov/refragd/internal/core/domain"
	"github.com/mpetrov/refragd/internal/core/ports"
)

// MemoryUseCase records and recalls session memory. It sits outside the
// selection core; the pipeline never depends on it.
type MemoryUseCase struct {
	store ports.MemoryStore
}

func NewMemoryUseCase(store ports.MemoryStore) *MemoryUseCase {
	return &MemoryUseCase{store: store}
}

func (uc *MemoryUseCase) Remember(ctx context.Context, record *domain.MemoryRecord) error {
	if strings.TrimSpace(record.SessionID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "remember", fmt.Errorf("session id is required"))
	}
	if !record.Type.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "remember", fmt.Errorf("unknown record type %q", record.Type))
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := uc.store.Save(ctx, record); err != nil {
		return fmt.Errorf("save memory record: %w", err)
	}
	return nil
}

func (uc *MemoryUseCase) Recall(
	ctx context.Context,
	sessionID, query string,
	k int,
	typeFilter domain.MemoryRecordType,
) ([]domain.MemoryRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "recall", fmt.Errorf("session id is required"))
	}
	if k <= 0 {
		k = 5
	}
	records, err := uc.store.Search(ctx, sessionID, query, k, typeFilter)
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}
	return records, nil
}
