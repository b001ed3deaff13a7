package controllers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"Charla/middleware"
	"Charla/models"
	"Charla/pkg/extract"
	"Charla/pkg/metrics"
	"Charla/pkg/storage"
	"Charla/pkg/store"
	utils "Charla/pkg/utills"
)

const uploadFolder = "chat-uploads"

type pendingUpload struct {
	name         string
	data         []byte
	mimeType     string
	resourceType string
}

// Upload stores a batch of files for a later turn. The whole batch is
// validated before anything is written; one bad file rejects all of them.
func Upload(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		maxBytes := d.Config.MaxUploadBytes
		if maxBytes <= 0 {
			maxBytes = extract.MaxUploadBytes
		}

		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "multipart form with files is required"})
			return
		}
		files := form.File["files"]
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "no files provided"})
			return
		}

		pending := make([]pendingUpload, 0, len(files))
		for _, fh := range files {
			p, err := readUpload(fh, maxBytes)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error(), "file": fh.Filename})
				return
			}
			pending = append(pending, p)
		}

		ctx := c.Request.Context()
		uid := middleware.CurrentUserID(c)
		folder := uploadFolder + "/" + uid
		out := make([]uploadJSON, 0, len(pending))
		for _, p := range pending {
			key := storage.NewKey(folder, filepath.Ext(p.name))
			url, err := d.Blobs.Put(ctx, key, bytes.NewReader(p.data), int64(len(p.data)), p.mimeType)
			if err != nil {
				d.internalError(c, fmt.Errorf("store %q: %w", p.name, err))
				return
			}
			u := &models.Upload{
				UploaderID:   uid,
				StorageKey:   key,
				URL:          url,
				Folder:       folder,
				ResourceType: p.resourceType,
				MimeType:     p.mimeType,
				Size:         int64(len(p.data)),
				FileName:     p.name,
			}
			if err := d.Store.CreateUpload(ctx, u); err != nil {
				d.internalError(c, err)
				return
			}
			metrics.UploadsTotal.WithLabelValues(p.resourceType).Inc()
			out = append(out, toUploadJSON(u))
		}
		c.JSON(http.StatusCreated, gin.H{"uploads": out})
	}
}

func readUpload(fh *multipart.FileHeader, maxBytes int64) (pendingUpload, error) {
	name := utils.SafeFileName(fh.Filename)
	if fh.Size > maxBytes {
		return pendingUpload{}, fmt.Errorf("%s exceeds the %d MB limit", name, maxBytes/(1024*1024))
	}
	f, err := fh.Open()
	if err != nil {
		return pendingUpload{}, fmt.Errorf("cannot read %s", name)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return pendingUpload{}, fmt.Errorf("cannot read %s", name)
	}
	if int64(len(data)) > maxBytes {
		return pendingUpload{}, fmt.Errorf("%s exceeds the %d MB limit", name, maxBytes/(1024*1024))
	}

	mt := extract.InferMimeType(fh.Header.Get("Content-Type"), name, data)
	rt, ok := extract.ResourceTypeFor(mt)
	if !ok {
		return pendingUpload{}, fmt.Errorf("%s: file type %s is not allowed", name, mt)
	}
	return pendingUpload{name: name, data: data, mimeType: mt, resourceType: rt}, nil
}

// Download proxies a stored file as an attachment. Callers that neither
// uploaded it nor take part in its conversation get 404.
func Download(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		u, err := d.Store.GetUpload(ctx, c.Param("id"))
		if err != nil {
			d.storeError(c, err, "File not found")
			return
		}
		ok, err := d.Store.CanAccessUpload(ctx, u, middleware.CurrentUserID(c))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			d.internalError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"msg": "File not found"})
			return
		}

		body, contentType, err := d.Blobs.Get(ctx, u.StorageKey)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"msg": "File not found"})
				return
			}
			d.internalError(c, err)
			return
		}
		defer body.Close()

		if u.MimeType != "" {
			contentType = u.MimeType
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		disposition := mime.FormatMediaType("attachment", map[string]string{"filename": utils.SafeFileName(u.FileName)})
		c.DataFromReader(http.StatusOK, u.Size, contentType, body, map[string]string{
			"Content-Disposition": disposition,
		})
	}
}
