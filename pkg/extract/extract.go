// Package extract turns uploaded files into attachments the model can read:
// images become inline data, documents become text.
package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"Charla/models"
	"Charla/pkg/cache"
	"Charla/pkg/chat"
	"Charla/pkg/storage"
)

const defaultConcurrency = 4

// Extractor reads upload bytes from the blob store. Document text is
// memoized by upload id since uploads never change.
type Extractor struct {
	blobs       storage.BlobStore
	cache       *cache.Cache
	ttl         time.Duration
	log         zerolog.Logger
	concurrency int
}

func New(blobs storage.BlobStore, c *cache.Cache, ttl time.Duration, log zerolog.Logger) *Extractor {
	return &Extractor{
		blobs:       blobs,
		cache:       c,
		ttl:         ttl,
		log:         log.With().Str("component", "extract").Logger(),
		concurrency: defaultConcurrency,
	}
}

// Uploads processes stored uploads concurrently; the result keeps input order.
func (e *Extractor) Uploads(ctx context.Context, uploads []models.Upload) []chat.Attachment {
	out := make([]chat.Attachment, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range uploads {
		g.Go(func() error {
			out[i] = e.upload(gctx, &uploads[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Inline processes files sent as base64 with a temporary turn.
func (e *Extractor) Inline(ctx context.Context, files []chat.InlineUpload) []chat.Attachment {
	out := make([]chat.Attachment, len(files))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range files {
		g.Go(func() error {
			out[i] = e.inline(&files[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Extractor) upload(ctx context.Context, u *models.Upload) chat.Attachment {
	switch u.ResourceType {
	case models.ResourceImage:
		data, contentType, err := storage.ReadAll(ctx, e.blobs, u.StorageKey)
		if err != nil {
			e.log.Warn().Err(err).Str("upload_id", u.ID).Msg("image fetch failed, sending url")
			return chat.Attachment{Kind: chat.KindImage, FileName: u.FileName, URL: u.URL}
		}
		declared := u.MimeType
		if declared == "" {
			declared = contentType
		}
		return chat.Attachment{
			Kind:     chat.KindImage,
			FileName: u.FileName,
			Base64:   base64.StdEncoding.EncodeToString(data),
			MimeType: imageMime(declared, u.FileName, data),
			URL:      u.URL,
		}
	case models.ResourceVideo:
		return chat.Attachment{
			Kind:     chat.KindVideo,
			FileName: u.FileName,
			URL:      u.URL,
			Text:     fmt.Sprintf("Video attached: %s (URL: %s)", u.FileName, u.URL),
		}
	}

	key := cache.KeyFromStrings("extract", u.ID)
	if v, ok := e.cache.Get(key); ok {
		if text, ok := v.(string); ok {
			return chat.Attachment{Kind: chat.KindDocument, FileName: u.FileName, URL: u.URL, Text: text}
		}
	}

	text := Unsupported(u.FileName)
	if fm, ok := formats[extOf(u.FileName)]; ok {
		data, _, err := storage.ReadAll(ctx, e.blobs, u.StorageKey)
		if err != nil {
			// not cached so a later turn can retry the fetch
			e.log.Warn().Err(err).Str("upload_id", u.ID).Msg("document fetch failed")
			return chat.Attachment{Kind: chat.KindDocument, FileName: u.FileName, URL: u.URL, Text: fm.failure}
		}
		text = Text(u.FileName, data)
	}
	e.cache.Set(key, text, e.ttl)
	return chat.Attachment{Kind: chat.KindDocument, FileName: u.FileName, URL: u.URL, Text: text}
}

func (e *Extractor) inline(f *chat.InlineUpload) chat.Attachment {
	switch f.ResourceType {
	case models.ResourceImage:
		payload := stripDataURL(f.Base64)
		mimeType := f.MimeType
		if !strings.HasPrefix(mimeType, "image/") {
			mimeType = "image/png"
		}
		return chat.Attachment{Kind: chat.KindImage, FileName: f.FileName, Base64: payload, MimeType: mimeType}
	case models.ResourceVideo:
		return chat.Attachment{Kind: chat.KindVideo, FileName: f.FileName, Text: "Video attached: " + f.FileName}
	}

	fm, ok := formats[extOf(f.FileName)]
	if !ok {
		return chat.Attachment{Kind: chat.KindDocument, FileName: f.FileName, Text: Unsupported(f.FileName)}
	}
	data, err := base64.StdEncoding.DecodeString(stripDataURL(f.Base64))
	if err != nil {
		e.log.Warn().Err(err).Str("file", f.FileName).Msg("inline upload is not valid base64")
		return chat.Attachment{Kind: chat.KindDocument, FileName: f.FileName, Text: fm.failure}
	}
	return chat.Attachment{Kind: chat.KindDocument, FileName: f.FileName, Text: Text(f.FileName, data)}
}

func stripDataURL(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}
