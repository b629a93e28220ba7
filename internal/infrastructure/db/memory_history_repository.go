package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mediadash/backend/internal/core/ports"
	"github.com/mediadash/backend/internal/domain"
	"github.com/mediadash/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

// MemoryHistoryRepository keeps completed tasks in process memory. It backs
// the server when no database is configured.
type MemoryHistoryRepository struct {
	mu     sync.RWMutex
	tasks  map[uint]domain.CompletedTask
	nextID uint
	logger *logger.Logger
}

func NewMemoryHistoryRepository(log *logger.Logger) *MemoryHistoryRepository {
	if log == nil {
		log = logger.NewNop()
	}
	return &MemoryHistoryRepository{tasks: make(map[uint]domain.CompletedTask), logger: log}
}

func (r *MemoryHistoryRepository) Create(ctx context.Context, task *domain.CompletedTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now()
	task.ID = r.nextID
	task.CreatedAt = now
	task.UpdatedAt = now
	r.tasks[task.ID] = *task
	r.logger.Debugw("history_memory_create", "id", task.ID, "label", task.TaskLabel)
	return nil
}

func (r *MemoryHistoryRepository) GetByID(ctx context.Context, id uint) (*domain.CompletedTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &task, nil
}

func (r *MemoryHistoryRepository) List(ctx context.Context, filter ports.HistoryFilter) ([]domain.CompletedTask, error) {
	r.mu.RLock()
	out := r.match(filter)
	r.mu.RUnlock()

	less := orderFunc(filter.OrderColumn)
	desc := filter.OrderDir != "asc"
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if desc {
			a, b = b, a
		}
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return out[i].ID > out[j].ID
	})

	if filter.Start >= len(out) {
		return []domain.CompletedTask{}, nil
	}
	out = out[filter.Start:]
	if filter.Length > 0 && len(out) > filter.Length {
		out = out[:filter.Length]
	}
	return out, nil
}

func (r *MemoryHistoryRepository) Count(ctx context.Context, filter ports.HistoryFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.match(filter))), nil
}

func (r *MemoryHistoryRepository) Delete(ctx context.Context, ids []uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, id := range ids {
		if _, ok := r.tasks[id]; ok {
			delete(r.tasks, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryHistoryRepository) match(filter ports.HistoryFilter) []domain.CompletedTask {
	search := strings.ToLower(filter.Search)
	out := make([]domain.CompletedTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		if search != "" && !strings.Contains(strings.ToLower(t.TaskLabel), search) {
			continue
		}
		if filter.Success != nil && t.TaskSuccess != *filter.Success {
			continue
		}
		out = append(out, t)
	}
	return out
}

func orderFunc(column string) func(a, b domain.CompletedTask) bool {
	switch column {
	case "id":
		return func(a, b domain.CompletedTask) bool { return a.ID < b.ID }
	case "task_label":
		return func(a, b domain.CompletedTask) bool { return a.TaskLabel < b.TaskLabel }
	case "task_success":
		return func(a, b domain.CompletedTask) bool { return !a.TaskSuccess && b.TaskSuccess }
	case "start_time":
		return func(a, b domain.CompletedTask) bool { return a.StartTime.Before(b.StartTime) }
	default:
		return func(a, b domain.CompletedTask) bool { return a.FinishTime.Before(b.FinishTime) }
	}
}
