package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"Charla/models"
)

// participantClause matches conversations owned or joined by a user.
const participantClause = "(conversations.user_id = ? OR EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id = conversations.id AND m.user_id = ?))"

// ConversationSummary is one row of the sidebar listing.
type ConversationSummary struct {
	Conversation models.Conversation
	LastMessage  string
	IsOwner      bool
	IsShared     bool
}

func (s *Store) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// FindAccessibleConversation returns the conversation when userID owns it or
// is a member, ErrNotFound otherwise. Non-members cannot tell the difference.
func (s *Store) FindAccessibleConversation(ctx context.Context, id, userID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("conversations.id = ?", id).
		Where(participantClause, userID, userID).
		First(&conv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

// FindOwnedConversation distinguishes owners (ok), members (ErrForbidden)
// and everyone else (ErrNotFound).
func (s *Store) FindOwnedConversation(ctx context.Context, id, userID string) (*models.Conversation, error) {
	conv, err := s.FindAccessibleConversation(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrForbidden
	}
	return conv, nil
}

// ListConversations returns owned and joined conversations, most recently
// active first, each with the latest user or assistant message text.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Preload("SharedLink").
		Where(participantClause, userID, userID).
		Order("conversations.updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		var last models.Message
		err := s.db.WithContext(ctx).
			Where("conversation_id = ? AND role IN ?", conv.ID, []string{models.RoleUser, models.RoleAssistant}).
			Order("created_at DESC").
			Limit(1).
			Find(&last).Error
		if err != nil {
			return nil, fmt.Errorf("latest message: %w", err)
		}
		out = append(out, ConversationSummary{
			Conversation: conv,
			LastMessage:  last.Content,
			IsOwner:      conv.UserID == userID,
			IsShared:     conv.SharedLink != nil,
		})
	}
	return out, nil
}

// LoadHistory returns the conversation with its messages in creation order,
// including authors and uploads.
func (s *Store) LoadHistory(ctx context.Context, id, userID string) (*models.Conversation, error) {
	if _, err := s.FindAccessibleConversation(ctx, id, userID); err != nil {
		return nil, err
	}
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Preload("SharedLink").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("messages.created_at ASC")
		}).
		Preload("Messages.Author").
		Preload("Messages.Uploads", func(db *gorm.DB) *gorm.DB {
			return db.Order("uploads.created_at ASC")
		}).
		First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).Update("title", title)
	if res.Error != nil {
		return fmt.Errorf("rename conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTitleIfUnset writes title only while the stored title is still empty.
// It reports whether this call set it.
func (s *Store) SetTitleIfUnset(ctx context.Context, id, title string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND title = ?", id, "").
		Update("title", title)
	if res.Error != nil {
		return false, fmt.Errorf("set title: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// DeleteConversation removes the conversation with its messages, attached
// upload rows, members and share link. Blobs are left in storage.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := tx.Model(&models.Message{}).Select("id").Where("conversation_id = ?", id)
		if err := tx.Where("message_id IN (?)", sub).Delete(&models.Upload{}).Error; err != nil {
			return fmt.Errorf("delete uploads: %w", err)
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&models.ConversationMember{}).Error; err != nil {
			return fmt.Errorf("delete members: %w", err)
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&models.SharedLink{}).Error; err != nil {
			return fmt.Errorf("delete link: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&models.Conversation{})
		if res.Error != nil {
			return fmt.Errorf("delete conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Participant is one entry of the members listing.
type Participant struct {
	User     models.User
	Role     string
	JoinedAt time.Time
}

const (
	ParticipantAdmin  = "admin"
	ParticipantMember = "member"
)

// ListParticipants returns the owner first, then members by join time.
func (s *Store) ListParticipants(ctx context.Context, conv *models.Conversation) ([]Participant, error) {
	owner, err := s.GetUser(ctx, conv.UserID)
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	var members []models.ConversationMember
	err = s.db.WithContext(ctx).
		Preload("User").
		Where("conversation_id = ? AND user_id <> ?", conv.ID, conv.UserID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	out := []Participant{{User: *owner, Role: ParticipantAdmin, JoinedAt: conv.CreatedAt}}
	for _, m := range members {
		if m.User == nil {
			continue
		}
		out = append(out, Participant{User: *m.User, Role: ParticipantMember, JoinedAt: m.CreatedAt})
	}
	return out, nil
}
