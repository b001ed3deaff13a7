package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"Charla/models"
)

// CreateMessage inserts msg and bumps the conversation's activity time.
func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		err := tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			UpdateColumn("updated_at", time.Now().UTC()).Error
		if err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		return nil
	})
}

// UpdateMessageContent replaces the content of an existing message.
func (s *Store) UpdateMessageContent(ctx context.Context, id, content string) error {
	res := s.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Update("content", content)
	if res.Error != nil {
		return fmt.Errorf("update message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
