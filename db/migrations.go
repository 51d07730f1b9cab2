package db

import (
	"fmt"

	"messenger/logger"
	"messenger/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type migrationStep struct {
	Name string
	SQL  string
}

// Индексы под запросы счётчика непрочитанных и постраничного чтения диалога.
// Синтаксис общий для postgres и sqlite.
var migrationSteps = []migrationStep{
	{
		Name: "0001_unread_index",
		SQL: `CREATE INDEX IF NOT EXISTS idx_messages_unread
			ON messages (recipient_id, conversation_key, is_read, is_deleted)`,
	},
	{
		Name: "0002_conversation_page_index",
		SQL: `CREATE INDEX IF NOT EXISTS idx_messages_conversation_page
			ON messages (conversation_key, created_at, id)`,
	},
}

// ApplyMigrations применяет ещё не применённые шаги и записывает их в таблицу migration
func ApplyMigrations(db *gorm.DB) error {
	for _, step := range migrationSteps {
		var applied int64
		if err := db.Model(&models.Migration{}).Where("name = ?", step.Name).Count(&applied).Error; err != nil {
			return fmt.Errorf("failed to check migration %s: %w", step.Name, err)
		}
		if applied > 0 {
			continue
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(step.SQL).Error; err != nil {
				return err
			}
			return tx.Create(&models.Migration{Name: step.Name}).Error
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", step.Name, err)
		}
		logger.Log.Info("migration applied", zap.String("name", step.Name))
	}
	return nil
}
