package db

import (
	"github.com/mediadash/backend/internal/domain"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.CompletedTask{}); err != nil {
		return err
	}
	return createCustomIndexes(db)
}

func createCustomIndexes(db *gorm.DB) error {
	// Newest-first listing of live rows
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_completed_tasks_recent
		ON completed_tasks (finish_time DESC)
		WHERE deleted_at IS NULL
	`).Error
}
