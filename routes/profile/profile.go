package profile

import (
	"github.com/gin-gonic/gin"

	"Charla/controllers"
)

// Register registers protected profile routes on supplied router group
// expects the group to already have AuthMiddleware applied
func Register(g *gin.RouterGroup, d *controllers.Deps) {
	g.GET("/profile", controllers.Profile(d))
	g.PUT("/profile", controllers.Profile(d))
}
