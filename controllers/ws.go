package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"

	"Charla/middleware"
)

const (
	wsReadLimit = 1 << 20
	wsReadWait  = 60 * time.Second
	wsWriteWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS handled at HTTP level; allow WS here
		return true
	},
}

type wsStartPayload struct {
	Type string `json:"type"`
	turnBody
}

// ChatWS runs one persisted turn per connection.
// Client protocol (JSON messages):
//
//	-> {type: "start", conversationId?, messages, newMessage, model?, mode?, uploadIds?}
//	<- {type: "conversation", conversationId, created}
//	<- {type: "delta", data}
//	<- {type: "done", ok: true, stopped?}
//	<- {type: "error", error}
//	-> {type: "stop"}  ends the live relay; the reply is still saved
func ChatWS(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := strings.TrimSpace(c.Query("token"))
		if tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "missing token query"})
			return
		}
		claims, err := middleware.ParseToken(d.Config.JWTSecret, tokenStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			d.Log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()
		log := d.Log.With().Str("component", "ws").Str("user_id", claims.UserID).Logger()

		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadWait))
		})

		send := func(v gin.H) error {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			return conn.WriteJSON(v)
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("no start message")
			return
		}
		var start wsStartPayload
		if err := json.Unmarshal(raw, &start); err != nil || strings.ToLower(start.Type) != "start" {
			_ = send(gin.H{"type": "error", "error": "invalid start payload"})
			return
		}
		if err := binding.Validator.ValidateStruct(&start.turnBody); err != nil {
			_ = send(gin.H{"type": "error", "error": "invalid start payload"})
			return
		}
		start.EphemeralUploads = nil
		if start.empty() {
			_ = send(gin.H{"type": "error", "error": emptyTurnMsg})
			return
		}

		turn, err := d.Orchestrator.Start(c.Request.Context(), start.request(claims.UserID))
		if err != nil {
			log.Warn().Err(err).Msg("turn failed to start")
			_ = send(gin.H{"type": "error", "error": "failed to start the reply"})
			return
		}
		if err := send(gin.H{"type": "conversation", "conversationId": turn.ConversationID, "created": turn.CreatedConversation}); err != nil {
			return
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		// reader: a stop frame or a closed socket ends the live relay only
		stopped := make(chan struct{})
		go func() {
			defer cancel()
			for {
				if err := conn.SetReadDeadline(time.Now().Add(wsReadWait)); err != nil {
					return
				}
				mt, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
					continue
				}
				var obj struct {
					Type string `json:"type"`
				}
				_ = json.Unmarshal(msg, &obj)
				if strings.ToLower(strings.TrimSpace(obj.Type)) == "stop" {
					close(stopped)
					return
				}
			}
		}()

		err = relayFrames(ctx, turn, send)
		select {
		case <-stopped:
			_ = send(gin.H{"type": "done", "ok": true, "stopped": true})
			return
		default:
		}
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Str("conversation_id", turn.ConversationID).Msg("live stream ended early")
				_ = send(gin.H{"type": "error", "error": "the reply was interrupted"})
			}
			return
		}
		_ = send(gin.H{"type": "done", "ok": true})
	}
}
