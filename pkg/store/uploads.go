package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"Charla/models"
)

func (s *Store) CreateUpload(ctx context.Context, u *models.Upload) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	return nil
}

func (s *Store) GetUpload(ctx context.Context, id string) (*models.Upload, error) {
	var u models.Upload
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// AttachUploads links the caller's still-detached uploads to messageID and
// returns every upload now attached to it. Uploads owned by someone else or
// already attached elsewhere are left untouched.
func (s *Store) AttachUploads(ctx context.Context, messageID, uploaderID string, ids []string) ([]models.Upload, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Upload
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Upload{}).
			Where("id IN ? AND uploader_id = ? AND message_id IS NULL", ids, uploaderID).
			Update("message_id", messageID).Error
		if err != nil {
			return fmt.Errorf("attach uploads: %w", err)
		}
		return tx.Where("message_id = ?", messageID).Order("created_at ASC").Find(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return orderByIDs(out, ids), nil
}

// FindUploads returns the caller's uploads among ids, in request order.
func (s *Store) FindUploads(ctx context.Context, uploaderID string, ids []string) ([]models.Upload, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Upload
	if err := s.db.WithContext(ctx).Where("id IN ? AND uploader_id = ?", ids, uploaderID).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("find uploads: %w", err)
	}
	return orderByIDs(out, ids), nil
}

// CanAccessUpload reports whether userID uploaded u or participates in the
// conversation u is attached to.
func (s *Store) CanAccessUpload(ctx context.Context, u *models.Upload, userID string) (bool, error) {
	if u.UploaderID == userID {
		return true, nil
	}
	if u.MessageID == nil {
		return false, nil
	}
	var msg models.Message
	if err := s.db.WithContext(ctx).Select("id", "conversation_id").First(&msg, "id = ?", *u.MessageID).Error; err != nil {
		return false, notFound(err)
	}
	if _, err := s.FindAccessibleConversation(ctx, msg.ConversationID, userID); err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func orderByIDs(in []models.Upload, ids []string) []models.Upload {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, ok := pos[id]; !ok {
			pos[id] = i
		}
	}
	out := make([]models.Upload, 0, len(in))
	rest := make([]models.Upload, 0)
	slots := make([]*models.Upload, len(ids))
	for i := range in {
		if p, ok := pos[in[i].ID]; ok && slots[p] == nil {
			slots[p] = &in[i]
			continue
		}
		rest = append(rest, in[i])
	}
	for _, u := range slots {
		if u != nil {
			out = append(out, *u)
		}
	}
	return append(out, rest...)
}
