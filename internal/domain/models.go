package domain

import (
	"time"

	"gorm.io/gorm"
)

// ==================== ENTITIES ====================

// CompletedTask is a finished task kept in the history table.
type CompletedTask struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TaskLabel   string    `gorm:"size:512;not null" json:"task_label"`
	AbsPath     string    `gorm:"size:2048" json:"abspath"`
	TaskSuccess bool      `gorm:"index" json:"task_success"`
	WorkerID    string    `gorm:"size:64" json:"worker_id,omitempty"`
	StartTime   time.Time `json:"start_time"`
	FinishTime  time.Time `gorm:"index;not null" json:"finish_time"`
}

// ==================== VIEWS ====================

// CompletedTaskSummary is the row shape pushed in completed_tasks messages.
type CompletedTaskSummary struct {
	ID                uint    `json:"id"`
	Label             string  `json:"label"`
	Success           bool    `json:"success"`
	FinishTime        float64 `json:"finish_time"`
	HumanReadableTime string  `json:"human_readable_time"`
}
