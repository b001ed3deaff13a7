package chat

import (
	"github.com/gin-gonic/gin"

	"Charla/controllers"
	"Charla/middleware"
)

// Register registers the persisted chat route (protected).
func Register(g *gin.RouterGroup, d *controllers.Deps) {
	g.POST("/chat", middleware.RateLimit(), controllers.Chat(d))
}

// RegisterOptional registers routes open to guests; the group resolves the
// caller when a token is sent.
func RegisterOptional(g *gin.RouterGroup, d *controllers.Deps) {
	g.POST("/chat/temporary", middleware.RateLimit(), controllers.TemporaryChat(d))
}
