package models

const (
	ResourceImage = "image"
	ResourceVideo = "video"
	ResourceRaw   = "raw"
)

type Upload struct {
	Base
	UploaderID   string  `gorm:"size:36;index;not null"`
	MessageID    *string `gorm:"size:36;index"`
	StorageKey   string  `gorm:"size:300;not null"`
	URL          string  `gorm:"size:1000;not null"`
	Folder       string  `gorm:"size:200"`
	ResourceType string  `gorm:"size:10;not null"`
	MimeType     string  `gorm:"size:120"`
	Size         int64
	FileName     string `gorm:"size:255;not null"`
}

// Detached reports whether the upload is not yet part of a sent message.
func (u *Upload) Detached() bool { return u.MessageID == nil }
