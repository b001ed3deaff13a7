package auth

import (
	"github.com/gin-gonic/gin"

	"Charla/controllers"
)

// RegisterPublic registers public auth routes: /register, /login
func RegisterPublic(r *gin.Engine, d *controllers.Deps) {
	r.POST("/register", controllers.Register(d))
	r.POST("/login", controllers.Login(d))
}

// RegisterProtected registers protected auth routes (e.g. logout)
func RegisterProtected(g *gin.RouterGroup, d *controllers.Deps) {
	g.POST("/logout", controllers.Logout())
}
