package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Charla/middleware"
	"Charla/models"
)

func shareJSON(l *models.SharedLink) gin.H {
	return gin.H{
		"id":             l.ID,
		"conversationId": l.ConversationID,
		"token":          l.Token,
		"isActive":       l.IsActive,
		"createdAt":      l.CreatedAt,
	}
}

// GetShare returns the link of a conversation the caller participates in.
func GetShare(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		conv, err := d.Store.FindAccessibleConversation(ctx, c.Param("id"), middleware.CurrentUserID(c))
		if err != nil {
			d.storeError(c, err, conversationNotFound)
			return
		}
		link, err := d.Store.GetSharedLink(ctx, conv.ID)
		if err != nil {
			d.storeError(c, err, "Conversation is not shared")
			return
		}
		c.JSON(http.StatusOK, gin.H{"share": shareJSON(link)})
	}
}

// CreateShare is idempotent: an existing link is returned with 200, a new
// one with 201 after the announcement message is posted.
func CreateShare(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		uid := middleware.CurrentUserID(c)
		conv, err := d.Store.FindOwnedConversation(ctx, c.Param("id"), uid)
		if err != nil {
			d.storeError(c, err, conversationNotFound)
			return
		}
		owner, err := d.Store.GetUser(ctx, uid)
		if err != nil {
			d.internalError(c, err)
			return
		}
		link, created, err := d.Store.CreateSharedLink(ctx, conv, owner)
		if err != nil {
			d.internalError(c, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{"share": shareJSON(link), "created": created})
	}
}

// RotateShare replaces the token; joins through the old one stop working.
func RotateShare(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		conv, err := d.Store.FindOwnedConversation(ctx, c.Param("id"), middleware.CurrentUserID(c))
		if err != nil {
			d.storeError(c, err, conversationNotFound)
			return
		}
		link, err := d.Store.RotateSharedLink(ctx, conv.ID)
		if err != nil {
			d.storeError(c, err, "Conversation is not shared")
			return
		}
		c.JSON(http.StatusOK, gin.H{"share": shareJSON(link)})
	}
}

// RevokeShare deletes the link and removes every member but the owner.
func RevokeShare(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		conv, err := d.Store.FindOwnedConversation(ctx, c.Param("id"), middleware.CurrentUserID(c))
		if err != nil {
			d.storeError(c, err, conversationNotFound)
			return
		}
		if err := d.Store.RevokeSharedLink(ctx, conv); err != nil {
			d.storeError(c, err, "Conversation is not shared")
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg": "Sharing disabled"})
	}
}

// Join redeems a share token. Repeated joins and the owner's own link are
// no-ops that still return where to go.
func Join(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		convID, status, err := d.Store.Join(c.Request.Context(), c.Param("token"), middleware.CurrentUserID(c))
		if err != nil {
			d.storeError(c, err, "Invalid or expired link")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"conversationId": convID,
			"status":         status,
			"redirect":       "/c/" + convID,
		})
	}
}
