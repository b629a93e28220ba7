package db

import (
	"context"
	"fmt"

	"github.com/mediadash/backend/internal/core/ports"
	"github.com/mediadash/backend/internal/domain"
	"github.com/mediadash/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type historyRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHistoryRepository(db *gorm.DB, log *logger.Logger) ports.CompletedTaskRepository {
	return &historyRepository{db: db, log: log}
}

func (r *historyRepository) Create(ctx context.Context, task *domain.CompletedTask) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		r.log.Errorw("history_repo_create_failed", "label", task.TaskLabel, "error", err)
		return err
	}
	r.log.Debugw("history_repo_create_ok", "id", task.ID)
	return nil
}

func (r *historyRepository) GetByID(ctx context.Context, id uint) (*domain.CompletedTask, error) {
	var task domain.CompletedTask
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		r.log.Errorw("history_repo_get_failed", "id", id, "error", err)
		return nil, err
	}
	return &task, nil
}

func (r *historyRepository) List(ctx context.Context, filter ports.HistoryFilter) ([]domain.CompletedTask, error) {
	var tasks []domain.CompletedTask
	q := r.filtered(ctx, filter).
		Order(fmt.Sprintf("%s %s", filter.OrderColumn, filter.OrderDir)).
		Order("id DESC").
		Offset(filter.Start)
	if filter.Length > 0 {
		q = q.Limit(filter.Length)
	}
	if err := q.Find(&tasks).Error; err != nil {
		r.log.Errorw("history_repo_list_failed", "error", err)
		return nil, err
	}
	return tasks, nil
}

func (r *historyRepository) Count(ctx context.Context, filter ports.HistoryFilter) (int64, error) {
	var n int64
	if err := r.filtered(ctx, filter).Count(&n).Error; err != nil {
		r.log.Errorw("history_repo_count_failed", "error", err)
		return 0, err
	}
	return n, nil
}

func (r *historyRepository) Delete(ctx context.Context, ids []uint) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&domain.CompletedTask{}, ids)
	if res.Error != nil {
		r.log.Errorw("history_repo_delete_failed", "ids", ids, "error", res.Error)
		return 0, res.Error
	}
	r.log.Infow("history_repo_delete_ok", "deleted", res.RowsAffected)
	return res.RowsAffected, nil
}

// filtered applies search and outcome filters. OrderColumn is expected to be
// whitelisted by the caller.
func (r *historyRepository) filtered(ctx context.Context, filter ports.HistoryFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&domain.CompletedTask{})
	if filter.Search != "" {
		q = q.Where("task_label ILIKE ?", "%"+filter.Search+"%")
	}
	if filter.Success != nil {
		q = q.Where("task_success = ?", *filter.Success)
	}
	return q
}
