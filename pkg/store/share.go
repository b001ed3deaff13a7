package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Charla/models"
)

const groupNotice = "%s started a group chat with a group link.\n\nYour personal memories are not used in group chats."

func (s *Store) GetSharedLink(ctx context.Context, conversationID string) (*models.SharedLink, error) {
	var link models.SharedLink
	if err := s.db.WithContext(ctx).First(&link, "conversation_id = ?", conversationID).Error; err != nil {
		return nil, notFound(err)
	}
	return &link, nil
}

// CreateSharedLink returns the existing link or creates one together with the
// system notice announcing the group chat. created is false when the link
// already existed.
func (s *Store) CreateSharedLink(ctx context.Context, conv *models.Conversation, owner *models.User) (*models.SharedLink, bool, error) {
	if link, err := s.GetSharedLink(ctx, conv.ID); err == nil {
		return link, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	link := &models.SharedLink{ConversationID: conv.ID, Token: uuid.NewString(), IsActive: true}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(link).Error; err != nil {
			return fmt.Errorf("create link: %w", err)
		}
		notice := &models.Message{
			ConversationID: conv.ID,
			AuthorID:       &owner.ID,
			Role:           models.RoleSystem,
			Content:        fmt.Sprintf(groupNotice, owner.DisplayName()),
		}
		if err := tx.Create(notice).Error; err != nil {
			return fmt.Errorf("create notice: %w", err)
		}
		return nil
	})
	if err != nil {
		// lost a race against a concurrent share; return the winner
		if existing, gerr := s.GetSharedLink(ctx, conv.ID); gerr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return link, true, nil
}

// RotateSharedLink replaces the token in place so old links stop working.
func (s *Store) RotateSharedLink(ctx context.Context, conversationID string) (*models.SharedLink, error) {
	link, err := s.GetSharedLink(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	link.Token = uuid.NewString()
	link.IsActive = true
	if err := s.db.WithContext(ctx).Model(link).Select("token", "is_active").Updates(link).Error; err != nil {
		return nil, fmt.Errorf("rotate link: %w", err)
	}
	return link, nil
}

// RevokeSharedLink deletes the link and evicts every non-owner member.
func (s *Store) RevokeSharedLink(ctx context.Context, conv *models.Conversation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("conversation_id = ?", conv.ID).Delete(&models.SharedLink{})
		if res.Error != nil {
			return fmt.Errorf("delete link: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		err := tx.Where("conversation_id = ? AND user_id <> ?", conv.ID, conv.UserID).
			Delete(&models.ConversationMember{}).Error
		if err != nil {
			return fmt.Errorf("evict members: %w", err)
		}
		return nil
	})
}

type JoinStatus string

const (
	JoinOwner         JoinStatus = "owner"
	JoinAlreadyMember JoinStatus = "already_member"
	JoinJoined        JoinStatus = "joined"
)

// Join adds userID to the conversation behind token. Joining twice is a no-op.
func (s *Store) Join(ctx context.Context, token, userID string) (string, JoinStatus, error) {
	var link models.SharedLink
	if err := s.db.WithContext(ctx).First(&link, "token = ? AND is_active = ?", token, true).Error; err != nil {
		return "", "", notFound(err)
	}
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Select("id", "user_id").First(&conv, "id = ?", link.ConversationID).Error; err != nil {
		return "", "", notFound(err)
	}
	if conv.UserID == userID {
		return conv.ID, JoinOwner, nil
	}

	member := &models.ConversationMember{ConversationID: conv.ID, UserID: userID}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}}, DoNothing: true}).
		Create(member)
	if res.Error != nil {
		return "", "", fmt.Errorf("join conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return conv.ID, JoinAlreadyMember, nil
	}
	return conv.ID, JoinJoined, nil
}
