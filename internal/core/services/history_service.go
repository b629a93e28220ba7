package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mediadash/backend/internal/core/ports"
	"github.com/mediadash/backend/internal/domain"
	"github.com/mediadash/backend/internal/infrastructure/logger"
)

const (
	defaultHistoryPageLength = 10
	maxHistoryPageLength     = 500
)

var historyOrderColumns = map[string]bool{
	"id":           true,
	"task_label":   true,
	"task_success": true,
	"start_time":   true,
	"finish_time":  true,
}

type HistoryServiceConfig struct {
	Repo   ports.CompletedTaskRepository
	Logger *logger.Logger
	Now    func() time.Time
}

type HistoryService struct {
	repo ports.CompletedTaskRepository
	log  *logger.Logger
	now  func() time.Time
}

func NewHistoryService(cfg HistoryServiceConfig) *HistoryService {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &HistoryService{repo: cfg.Repo, log: log, now: now}
}

func (s *HistoryService) Record(ctx context.Context, input ports.RecordTaskInput) (*domain.CompletedTask, error) {
	label := strings.TrimSpace(input.Label)
	if label == "" {
		return nil, fmt.Errorf("%w: label is required", ErrHistoryInvalidInput)
	}
	finish := input.FinishTime
	if finish.IsZero() {
		finish = s.now()
	}
	if !input.StartTime.IsZero() && input.StartTime.After(finish) {
		return nil, fmt.Errorf("%w: start_time after finish_time", ErrHistoryInvalidInput)
	}

	task := &domain.CompletedTask{
		TaskLabel:   label,
		AbsPath:     input.AbsPath,
		TaskSuccess: input.Success,
		WorkerID:    input.WorkerID,
		StartTime:   input.StartTime,
		FinishTime:  finish,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("record completed task: %w", err)
	}
	s.log.Infow("history_task_recorded", "id", task.ID, "label", label, "success", input.Success)
	return task, nil
}

// Recent returns the newest completed tasks for the dashboard feed.
func (s *HistoryService) Recent(ctx context.Context, limit int) ([]domain.CompletedTaskSummary, error) {
	if limit <= 0 {
		limit = defaultHistoryPageLength
	}
	tasks, err := s.repo.List(ctx, ports.HistoryFilter{
		Length:      limit,
		OrderColumn: "finish_time",
		OrderDir:    "desc",
	})
	if err != nil {
		return nil, fmt.Errorf("list recent tasks: %w", err)
	}
	return s.summarize(tasks), nil
}

func (s *HistoryService) List(ctx context.Context, filter ports.HistoryFilter) (*ports.HistoryPage, error) {
	filter = normalizeHistoryFilter(filter)

	total, err := s.repo.Count(ctx, ports.HistoryFilter{})
	if err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}
	filtered, err := s.repo.Count(ctx, ports.HistoryFilter{Search: filter.Search, Success: filter.Success})
	if err != nil {
		return nil, fmt.Errorf("count filtered history: %w", err)
	}
	succeeded, failed := true, false
	successCount, err := s.repo.Count(ctx, ports.HistoryFilter{Success: &succeeded})
	if err != nil {
		return nil, fmt.Errorf("count successful history: %w", err)
	}
	failedCount, err := s.repo.Count(ctx, ports.HistoryFilter{Success: &failed})
	if err != nil {
		return nil, fmt.Errorf("count failed history: %w", err)
	}
	tasks, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	return &ports.HistoryPage{
		RecordsTotal:    total,
		RecordsFiltered: filtered,
		SuccessCount:    successCount,
		FailedCount:     failedCount,
		Results:         s.summarize(tasks),
	}, nil
}

func (s *HistoryService) Delete(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: id_list is empty", ErrHistoryInvalidInput)
	}
	n, err := s.repo.Delete(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete history: %w", err)
	}
	s.log.Infow("history_tasks_deleted", "requested", len(ids), "deleted", n)
	return n, nil
}

func (s *HistoryService) summarize(tasks []domain.CompletedTask) []domain.CompletedTaskSummary {
	now := s.now()
	out := make([]domain.CompletedTaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, domain.CompletedTaskSummary{
			ID:                t.ID,
			Label:             t.TaskLabel,
			Success:           t.TaskSuccess,
			FinishTime:        float64(t.FinishTime.Unix()),
			HumanReadableTime: HumanizeSince(now, t.FinishTime),
		})
	}
	return out
}

func normalizeHistoryFilter(f ports.HistoryFilter) ports.HistoryFilter {
	if f.Start < 0 {
		f.Start = 0
	}
	if f.Length <= 0 {
		f.Length = defaultHistoryPageLength
	}
	if f.Length > maxHistoryPageLength {
		f.Length = maxHistoryPageLength
	}
	f.Search = strings.TrimSpace(f.Search)
	if !historyOrderColumns[f.OrderColumn] {
		f.OrderColumn = "finish_time"
	}
	if f.OrderDir != "asc" {
		f.OrderDir = "desc"
	}
	return f
}

// HumanizeSince renders t relative to now using its largest unit, e.g.
// "3 hours ago". Anything within the last minute is "Just Now".
func HumanizeSince(now, t time.Time) string {
	if t.Add(time.Minute).After(now) {
		return "Just Now"
	}
	delta := now.Sub(t)

	units := []struct {
		name string
		size time.Duration
	}{
		{"year", 365 * 24 * time.Hour},
		{"day", 24 * time.Hour},
		{"hour", time.Hour},
		{"minute", time.Minute},
	}
	for _, u := range units {
		if n := int64(delta / u.size); n > 0 {
			if n == 1 {
				return fmt.Sprintf("1 %s ago", u.name)
			}
			return fmt.Sprintf("%d %ss ago", n, u.name)
		}
	}
	return "Just Now"
}
