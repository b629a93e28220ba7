package ports

import (
	"context"
	"time"

	"github.com/mediadash/backend/internal/domain"
)

type WorkerRegistry interface {
	Upsert(report domain.WorkerReport) (domain.WorkerStatus, error)
	Remove(id string) error
	Get(id string) (domain.WorkerStatus, error)
	Snapshot() []domain.WorkerStatus
	PendingTasks(limit int) []domain.PendingTask
	PruneStale(olderThan time.Duration) []string
}

type RecordTaskInput struct {
	Label      string    `json:"label"`
	AbsPath    string    `json:"abspath"`
	Success    bool      `json:"success"`
	WorkerID   string    `json:"worker_id"`
	StartTime  time.Time `json:"start_time"`
	FinishTime time.Time `json:"finish_time"`
}

type HistoryPage struct {
	RecordsTotal    int64                         `json:"recordsTotal"`
	RecordsFiltered int64                         `json:"recordsFiltered"`
	SuccessCount    int64                         `json:"successCount"`
	FailedCount     int64                         `json:"failedCount"`
	Results         []domain.CompletedTaskSummary `json:"results"`
}

type HistoryService interface {
	Record(ctx context.Context, input RecordTaskInput) (*domain.CompletedTask, error)
	Recent(ctx context.Context, limit int) ([]domain.CompletedTaskSummary, error)
	List(ctx context.Context, filter HistoryFilter) (*HistoryPage, error)
	Delete(ctx context.Context, ids []uint) (int64, error)
}
