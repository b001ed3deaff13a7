package extract

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"Charla/models"
)

// MaxUploadBytes is the default per-file size limit.
const MaxUploadBytes = 10 * 1024 * 1024

var allowedTypes = map[string]string{
	"image/jpeg":         models.ResourceImage,
	"image/png":          models.ResourceImage,
	"image/gif":          models.ResourceImage,
	"image/webp":         models.ResourceImage,
	"video/mp4":          models.ResourceVideo,
	"video/webm":         models.ResourceVideo,
	"video/quicktime":    models.ResourceVideo,
	"application/pdf":    models.ResourceRaw,
	"application/msword": models.ResourceRaw,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   models.ResourceRaw,
	"application/vnd.ms-powerpoint":                                             models.ResourceRaw,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": models.ResourceRaw,
	"application/vnd.ms-excel":                                                  models.ResourceRaw,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         models.ResourceRaw,
	"text/plain":    models.ResourceRaw,
	"text/csv":      models.ResourceRaw,
	"text/markdown": models.ResourceRaw,
}

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".bmp":  "image/bmp",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".md":   "text/markdown",
	".json": "application/json",
}

// MimeFromName maps a file extension to its MIME type, or "".
func MimeFromName(name string) string {
	return extensionTypes[strings.ToLower(filepath.Ext(name))]
}

// InferMimeType picks the MIME type of an upload: the declared type when it
// is specific, then the extension, then content sniffing.
func InferMimeType(declared, name string, head []byte) string {
	if base, _, err := mime.ParseMediaType(declared); err == nil && base != "" && base != "application/octet-stream" {
		return base
	}
	if t := MimeFromName(name); t != "" {
		return t
	}
	if len(head) > 0 {
		if base, _, err := mime.ParseMediaType(mimetype.Detect(head).String()); err == nil {
			return base
		}
	}
	return "application/octet-stream"
}

// ResourceTypeFor reports the storage class of an allowed MIME type.
func ResourceTypeFor(mimeType string) (string, bool) {
	rt, ok := allowedTypes[mimeType]
	return rt, ok
}

// imageMime resolves the MIME type sent to the model for image bytes.
func imageMime(declared, name string, data []byte) string {
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	if t := MimeFromName(name); strings.HasPrefix(t, "image/") {
		return t
	}
	if t := mimetype.Detect(data); strings.HasPrefix(t.String(), "image/") {
		return t.String()
	}
	return "image/png"
}
