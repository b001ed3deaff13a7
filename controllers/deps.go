package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"Charla/pkg/chat"
	"Charla/pkg/config"
	"Charla/pkg/guest"
	"Charla/pkg/storage"
	"Charla/pkg/store"
)

// Deps carries everything the handlers need. Built once in main.
type Deps struct {
	Config       *config.Config
	Store        *store.Store
	Orchestrator *chat.Orchestrator
	Blobs        storage.BlobStore
	Guest        guest.Policy
	Log          zerolog.Logger
	// Now is overridden in tests to drive the guest window.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// storeError maps repository errors to the HTTP taxonomy. Anything
// unexpected is logged and reported as a bare 500.
func (d *Deps) storeError(c *gin.Context, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": notFoundMsg})
	case errors.Is(err, store.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"msg": "only the conversation owner can do this"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"msg": "already exists"})
	default:
		d.internalError(c, err)
	}
}

func (d *Deps) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	d.Log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal server error"})
}
