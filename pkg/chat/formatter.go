package chat

import (
	"strings"

	"Charla/pkg/llm"
)

const (
	KindImage    = "image"
	KindDocument = "document"
	KindVideo    = "video"
)

// Attachment is a processed upload ready to be merged into a user turn.
// Images carry Base64+MimeType, or only URL when inline conversion failed.
// Documents and videos carry Text.
type Attachment struct {
	Kind     string
	FileName string
	Base64   string
	MimeType string
	URL      string
	Text     string
}

func HasImage(atts []Attachment) bool {
	for _, a := range atts {
		if a.Kind == KindImage {
			return true
		}
	}
	return false
}

// Format merges the user text with processed attachments. Without images the
// result is plain text; with images it is one text part followed by one image
// part per image, in input order.
func Format(userText string, atts []Attachment) llm.Content {
	var b strings.Builder
	b.WriteString(userText)
	for _, a := range atts {
		if a.Kind == KindImage {
			continue
		}
		text := a.Text
		if text == "" {
			text = "(no readable content)"
		}
		b.WriteString("\n\n--- Content of ")
		b.WriteString(a.FileName)
		b.WriteString(" ---\n")
		b.WriteString(text)
	}
	text := b.String()

	if !HasImage(atts) {
		return llm.TextContent(text)
	}

	parts := []llm.Part{{Type: llm.PartText, Text: text}}
	for _, a := range atts {
		if a.Kind != KindImage {
			continue
		}
		switch {
		case a.Base64 != "" && a.MimeType != "":
			parts = append(parts, llm.Part{Type: llm.PartImage, Image: "data:" + a.MimeType + ";base64," + a.Base64})
		case a.URL != "":
			parts = append(parts, llm.Part{Type: llm.PartImage, Image: a.URL})
		default:
			// nothing to point at; keep the file visible to the model
			parts[0].Text += "\n\n--- Content of " + a.FileName + " ---\n(image could not be loaded)"
		}
	}
	return llm.Content{Parts: parts}
}
