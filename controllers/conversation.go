package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"Charla/middleware"
	"Charla/models"
)

const (
	conversationNotFound = "Conversation not found"
	maxTitleLength       = 200
)

type uploadJSON struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	FileName     string `json:"fileName"`
	MimeType     string `json:"mimeType"`
	ResourceType string `json:"resourceType"`
	Size         int64  `json:"size"`
}

func toUploadJSON(u *models.Upload) uploadJSON {
	return uploadJSON{
		ID:           u.ID,
		URL:          u.URL,
		FileName:     u.FileName,
		MimeType:     u.MimeType,
		ResourceType: u.ResourceType,
		Size:         u.Size,
	}
}

type messageJSON struct {
	ID        string       `json:"id"`
	Role      string       `json:"role"`
	Content   string       `json:"content"`
	Author    gin.H        `json:"author"`
	Uploads   []uploadJSON `json:"uploads"`
	CreatedAt time.Time    `json:"createdAt"`
}

// ListConversations returns owned and joined conversations, newest activity first.
func ListConversations(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := d.Store.ListConversations(c.Request.Context(), middleware.CurrentUserID(c))
		if err != nil {
			d.internalError(c, err)
			return
		}
		out := make([]gin.H, 0, len(rows))
		for _, r := range rows {
			out = append(out, gin.H{
				"id":          r.Conversation.ID,
				"title":       r.Conversation.Title,
				"lastMessage": r.LastMessage,
				"isOwner":     r.IsOwner,
				"isShared":    r.IsShared,
				"createdAt":   r.Conversation.CreatedAt,
				"updatedAt":   r.Conversation.UpdatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"conversations": out})
	}
}

// GetConversation returns the ordered history. Non-members get 404.
func GetConversation(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := middleware.CurrentUserID(c)
		conv, err := d.Store.LoadHistory(c.Request.Context(), c.Param("id"), uid)
		if err != nil {
			d.storeError(c, err, conversationNotFound)
			return
		}

		msgs := make([]messageJSON, 0, len(conv.Messages))
		for i := range conv.Messages {
			m := &conv.Messages[i]
			mj := messageJSON{
				ID:        m.ID,
				Role:      m.Role,
				Content:   m.Content,
				Uploads:   make([]uploadJSON, 0, len(m.Uploads)),
				CreatedAt: m.CreatedAt,
			}
			if m.Author != nil {
				mj.Author = gin.H{"id": m.Author.ID, "name": m.Author.DisplayName(), "image": m.Author.Image}
			}
			for j := range m.Uploads {
				mj.Uploads = append(mj.Uploads, toUploadJSON(&m.Uploads[j]))
			}
			msgs = append(msgs, mj)
		}

		c.JSON(http.StatusOK, gin.H{
			"id":        conv.ID,
			"title":     conv.Title,
			"isOwner":   conv.UserID == uid,
			"isShared":  conv.SharedLink != nil,
			"createdAt": conv.CreatedAt,
			"updatedAt": conv.UpdatedAt,
			"messages":  msgs,
		})
	}
}

// RenameConversation is owner only; members get 403.
func RenameConversation(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Title string `json:"title" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "title is required"})
			return
		}
		title := strings.TrimSpace(body.Title)
		if title == "" || len([]rune(title)) > maxTitleLength {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "title must be 1 to 200 characters"})
			return
		}

		ctx := c.Request.Context()
		conv, err := d.Store.FindOwnedConversation(ctx, c.Param("id"), middleware.CurrentUserID(c))
		if err != nil {
			d.storeError(c, err, conversationNotFound)
			return
		}
		if err := d.Store.RenameConversation(ctx, conv.ID, title); err != nil {
			d.storeError(c, err, conversationNotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": conv.ID, "title": title})
	}
}

// DeleteConversation removes the conversation with its messages, members and link.
func DeleteConversation(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		conv, err := d.Store.FindOwnedConversation(ctx, c.Param("id"), middleware.CurrentUserID(c))
		if err != nil {
			d.storeError(c, err, conversationNotFound)
			return
		}
		if err := d.Store.DeleteConversation(ctx, conv.ID); err != nil {
			d.storeError(c, err, conversationNotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg": "Conversation deleted"})
	}
}

// ListMembers returns the owner as admin followed by joined members.
func ListMembers(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		conv, err := d.Store.FindAccessibleConversation(ctx, c.Param("id"), middleware.CurrentUserID(c))
		if err != nil {
			d.storeError(c, err, conversationNotFound)
			return
		}
		parts, err := d.Store.ListParticipants(ctx, conv)
		if err != nil {
			d.internalError(c, err)
			return
		}
		out := make([]gin.H, 0, len(parts))
		for _, p := range parts {
			out = append(out, gin.H{
				"id":       p.User.ID,
				"name":     p.User.DisplayName(),
				"email":    p.User.Email,
				"image":    p.User.Image,
				"role":     p.Role,
				"joinedAt": p.JoinedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"members": out})
	}
}
