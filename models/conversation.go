package models

type Conversation struct {
	Base
	UserID     string               `gorm:"size:36;not null;index"`
	User       *User                `gorm:"foreignKey:UserID"`
	Title      string               `gorm:"size:200;not null;default:''"`
	Messages   []Message            `gorm:"constraint:OnDelete:CASCADE"`
	Members    []ConversationMember `gorm:"constraint:OnDelete:CASCADE"`
	SharedLink *SharedLink          `gorm:"constraint:OnDelete:CASCADE"`
}

// HasTitle reports whether the title was already derived or set.
func (c *Conversation) HasTitle() bool { return c.Title != "" }

// SharedLink grants join access to a conversation. One per conversation.
type SharedLink struct {
	Base
	ConversationID string `gorm:"size:36;not null;uniqueIndex"`
	Token          string `gorm:"size:64;not null;uniqueIndex"`
	IsActive       bool   `gorm:"not null;default:true"`
}

type ConversationMember struct {
	Base
	ConversationID string `gorm:"size:36;not null;uniqueIndex:idx_member_conv_user"`
	UserID         string `gorm:"size:36;not null;uniqueIndex:idx_member_conv_user;index"`
	User           *User  `gorm:"foreignKey:UserID"`
}
