package websocket

import (
	"github.com/gin-gonic/gin"

	"Charla/controllers"
	"Charla/middleware"
)

func Register(r *gin.Engine, d *controllers.Deps) {
	r.GET("/ws/chat", middleware.RateLimit(), controllers.ChatWS(d))
}
