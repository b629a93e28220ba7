package dto

import (
	"math"
	"strings"
	"time"

	"github.com/mediadash/backend/internal/core/ports"
)

// RecordTaskRequest carries unix timestamps in seconds, fractions allowed.
type RecordTaskRequest struct {
	Label      string  `json:"label"`
	AbsPath    string  `json:"abspath"`
	Success    bool    `json:"success"`
	WorkerID   string  `json:"worker_id"`
	StartTime  float64 `json:"start_time"`
	FinishTime float64 `json:"finish_time"`
}

func (r *RecordTaskRequest) Validate() []string {
	var errors []string

	if strings.TrimSpace(r.Label) == "" {
		errors = append(errors, "label is required")
	}
	if r.StartTime < 0 || r.FinishTime < 0 {
		errors = append(errors, "timestamps must not be negative")
	}

	return errors
}

func (r *RecordTaskRequest) ToInput() ports.RecordTaskInput {
	return ports.RecordTaskInput{
		Label:      strings.TrimSpace(r.Label),
		AbsPath:    r.AbsPath,
		Success:    r.Success,
		WorkerID:   r.WorkerID,
		StartTime:  unixSeconds(r.StartTime),
		FinishTime: unixSeconds(r.FinishTime),
	}
}

func unixSeconds(v float64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9))
}

type HistoryOrder struct {
	Column string `json:"column"`
	Dir    string `json:"dir"`
}

// HistoryListRequest follows the datatables paging convention.
type HistoryListRequest struct {
	Start       int            `json:"start"`
	Length      int            `json:"length"`
	SearchValue string         `json:"search_value"`
	Status      string         `json:"status"`
	Order       []HistoryOrder `json:"order"`
}

func (r *HistoryListRequest) Validate() []string {
	var errors []string

	if r.Start < 0 {
		errors = append(errors, "start must not be negative")
	}
	switch r.Status {
	case "", "all", "success", "failed":
	default:
		errors = append(errors, "status must be one of: all, success, failed")
	}

	return errors
}

func (r *HistoryListRequest) ToFilter() ports.HistoryFilter {
	f := ports.HistoryFilter{
		Start:  r.Start,
		Length: r.Length,
		Search: r.SearchValue,
	}
	if len(r.Order) > 0 {
		f.OrderColumn = r.Order[0].Column
		f.OrderDir = strings.ToLower(r.Order[0].Dir)
	}
	switch r.Status {
	case "success":
		ok := true
		f.Success = &ok
	case "failed":
		ok := false
		f.Success = &ok
	}
	return f
}

type HistoryListResponse struct {
	Success bool `json:"success"`
	*ports.HistoryPage
}

type DeleteHistoryRequest struct {
	IDList []uint `json:"id_list"`
}

func (r *DeleteHistoryRequest) Validate() []string {
	if len(r.IDList) == 0 {
		return []string{"id_list is required"}
	}
	return nil
}

type DeleteHistoryResponse struct {
	Success bool  `json:"success"`
	Deleted int64 `json:"deleted"`
}
