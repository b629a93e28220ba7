package dto

import (
	"strings"

	"github.com/mediadash/backend/internal/domain"
)

// WorkerStatusRequest is what a worker posts after every progress change.
type WorkerStatusRequest struct {
	ID          domain.FlexString   `json:"id"`
	Name        string              `json:"name"`
	Idle        bool                `json:"idle"`
	Paused      bool                `json:"paused"`
	CurrentFile string              `json:"current_file"`
	Percent     *float64            `json:"percent,omitempty"`
	StartTime   int64               `json:"start_time,omitempty"`
	LogLines    []string            `json:"log_lines,omitempty"`
	Runners     []domain.RunnerInfo `json:"runners_info,omitempty"`
	Pending     []string            `json:"pending,omitempty"`
}

func (r *WorkerStatusRequest) Validate() []string {
	var errors []string

	if strings.TrimSpace(r.ID.String()) == "" {
		errors = append(errors, "id is required")
	}
	if r.Percent != nil && (*r.Percent < 0 || *r.Percent > 100) {
		errors = append(errors, "percent must be between 0 and 100")
	}
	if r.StartTime < 0 {
		errors = append(errors, "start_time must not be negative")
	}

	return errors
}

func (r *WorkerStatusRequest) ToReport() domain.WorkerReport {
	return domain.WorkerReport{
		ID:          strings.TrimSpace(r.ID.String()),
		Name:        r.Name,
		Idle:        r.Idle,
		Paused:      r.Paused,
		CurrentFile: r.CurrentFile,
		Percent:     r.Percent,
		StartTime:   r.StartTime,
		LogLines:    r.LogLines,
		Runners:     r.Runners,
		Pending:     r.Pending,
	}
}

type WorkerStatusResponse struct {
	Success bool                `json:"success"`
	Worker  domain.WorkerStatus `json:"worker"`
}

type WorkerListResponse struct {
	Success bool                  `json:"success"`
	Workers []domain.WorkerStatus `json:"workers"`
}

type PendingListResponse struct {
	Success         bool                 `json:"success"`
	RecordsTotal    int                  `json:"recordsTotal"`
	RecordsFiltered int                  `json:"recordsFiltered"`
	Results         []domain.PendingTask `json:"results"`
}
