package ports

import (
	"context"

	"github.com/mediadash/backend/internal/domain"
)

// HistoryFilter selects a page of completed tasks.
type HistoryFilter struct {
	Start       int
	Length      int
	Search      string
	OrderColumn string
	OrderDir    string
	Success     *bool
}

type CompletedTaskRepository interface {
	Create(ctx context.Context, task *domain.CompletedTask) error
	GetByID(ctx context.Context, id uint) (*domain.CompletedTask, error)
	List(ctx context.Context, filter HistoryFilter) ([]domain.CompletedTask, error)
	Count(ctx context.Context, filter HistoryFilter) (int64, error)
	Delete(ctx context.Context, ids []uint) (int64, error)
}
