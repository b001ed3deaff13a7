package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Charla/controllers"
	"Charla/middleware"
	authRoutes "Charla/routes/auth"
	chatRoutes "Charla/routes/chat"
	convRoutes "Charla/routes/conversation"
	profileRoutes "Charla/routes/profile"
	shareRoutes "Charla/routes/share"
	uploadsRoutes "Charla/routes/uploads"
	websocketRoutes "Charla/routes/websocket"
)

func RegisterRoutes(r *gin.Engine, d *controllers.Deps) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "Charla chat backend running"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	uploadsRoutes.RegisterPublic(r, d)
	websocketRoutes.Register(r, d)
	authRoutes.RegisterPublic(r, d)

	optional := r.Group("/")
	optional.Use(middleware.OptionalAuth(d.Config.JWTSecret))
	chatRoutes.RegisterOptional(optional, d)

	protected := r.Group("/")
	protected.Use(middleware.AuthMiddleware(d.Config.JWTSecret))
	authRoutes.RegisterProtected(protected, d)
	profileRoutes.Register(protected, d)
	chatRoutes.Register(protected, d)
	convRoutes.Register(protected, d)
	shareRoutes.Register(protected, d)
	uploadsRoutes.Register(protected, d)
}
