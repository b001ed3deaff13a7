package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"Charla/middleware"
	"Charla/pkg/chat"
	"Charla/pkg/guest"
	"Charla/pkg/llm"
	"Charla/pkg/metrics"
)

const conversationHeader = "x-conversation-id"

type turnBody struct {
	ConversationID   string              `json:"conversationId"`
	Messages         []llm.Message       `json:"messages" binding:"required,dive"`
	NewMessage       *string             `json:"newMessage" binding:"required"`
	Model            string              `json:"model"`
	Mode             string              `json:"mode"`
	UploadIDs        []string            `json:"uploadIds"`
	EphemeralUploads []chat.InlineUpload `json:"ephemeralUploads" binding:"omitempty,dive"`
}

func (b *turnBody) request(userID string) chat.TurnRequest {
	return chat.TurnRequest{
		UserID:         userID,
		ConversationID: b.ConversationID,
		History:        b.Messages,
		NewMessage:     *b.NewMessage,
		Model:          b.Model,
		Mode:           b.Mode,
		UploadIDs:      b.UploadIDs,
		Inline:         b.EphemeralUploads,
	}
}

func (b *turnBody) hasAttachments() bool {
	return len(b.UploadIDs) > 0 || len(b.EphemeralUploads) > 0
}

// empty reports a turn with neither text nor files.
func (b *turnBody) empty() bool {
	return strings.TrimSpace(*b.NewMessage) == "" && !b.hasAttachments()
}

const emptyTurnMsg = "message text or an attachment is required"

// Chat runs a persisted turn and streams the reply as plain text. The
// conversation id is sent in a header before the first chunk.
func Chat(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body turnBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid payload", "error": err.Error()})
			return
		}
		body.EphemeralUploads = nil
		if body.empty() {
			c.JSON(http.StatusBadRequest, gin.H{"msg": emptyTurnMsg})
			return
		}

		turn, err := d.Orchestrator.Start(c.Request.Context(), body.request(middleware.CurrentUserID(c)))
		if err != nil {
			d.turnError(c, err)
			return
		}
		c.Header(conversationHeader, turn.ConversationID)
		d.streamText(c, turn)
	}
}

// TemporaryChat runs a turn that is never stored. Guests are limited by a
// cookie-held counter of new conversations and may not attach files.
func TemporaryChat(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body turnBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid payload", "error": err.Error()})
			return
		}
		if body.empty() {
			c.JSON(http.StatusBadRequest, gin.H{"msg": emptyTurnMsg})
			return
		}
		userID := middleware.CurrentUserID(c)

		if userID == "" {
			if body.hasAttachments() {
				metrics.GuestDecisionsTotal.WithLabelValues("attachments_forbidden").Inc()
				c.JSON(http.StatusForbidden, gin.H{"msg": "files are not allowed for guests"})
				return
			}
			raw, _ := c.Cookie(guest.CookieName)
			decision := d.Guest.Evaluate(raw, len(body.Messages) == 0, d.now())
			http.SetCookie(c.Writer, guest.Cookie(decision.State, d.Config.IsProduction()))
			if !decision.Allowed {
				metrics.GuestDecisionsTotal.WithLabelValues("rejected").Inc()
				c.JSON(http.StatusTooManyRequests, gin.H{
					"msg":    fmt.Sprintf("Limit reached: %d conversations every %s.", d.Guest.Limit, windowText(d.Guest.Window)),
					"reason": "guest_limit_reached",
					"limit":  d.Guest.Limit,
				})
				return
			}
			metrics.GuestDecisionsTotal.WithLabelValues("admitted").Inc()
		}

		turn, err := d.Orchestrator.StartEphemeral(c.Request.Context(), body.request(userID))
		if err != nil {
			d.turnError(c, err)
			return
		}
		d.streamText(c, turn)
	}
}

func (d *Deps) turnError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrProviderUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"msg": "the model provider is unavailable"})
	case errors.Is(err, chat.ErrAttachmentsRequireIdentity):
		c.JSON(http.StatusForbidden, gin.H{"msg": "files are not allowed for guests"})
	case errors.Is(err, chat.ErrIdentityRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "sign in required"})
	default:
		d.internalError(c, err)
	}
}

// streamText forwards the live branch chunk by chunk. A client that goes
// away only ends this loop.
func (d *Deps) streamText(c *gin.Context, turn *chat.Turn) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no") // nginx buffering off
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	err := chat.Relay(c.Request.Context(), turn.Live, func(chunk string) error {
		if _, err := c.Writer.WriteString(chunk); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		d.Log.Warn().Err(err).
			Str("conversation_id", turn.ConversationID).
			Str("model", turn.Model).
			Msg("live stream ended early")
	}
}

func windowText(w time.Duration) string {
	if h := int(w.Hours()); h > 0 && w == time.Duration(h)*time.Hour {
		if h == 1 {
			return "hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return w.String()
}

func relayFrames(ctx context.Context, turn *chat.Turn, send func(gin.H) error) error {
	return chat.Relay(ctx, turn.Live, func(chunk string) error {
		return send(gin.H{"type": "delta", "data": chunk})
	})
}
