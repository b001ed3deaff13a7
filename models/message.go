package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	Base
	ConversationID string `gorm:"size:36;index;not null"`
	// AuthorID is nil for assistant output.
	AuthorID *string `gorm:"size:36;index"`
	Author   *User   `gorm:"foreignKey:AuthorID"`
	// Role is written once at creation and never updated.
	Role    string   `gorm:"size:20;not null;<-:create"`
	Content string   `gorm:"type:text;not null;default:''"`
	Uploads []Upload `gorm:"foreignKey:MessageID"`
}
