package share

import (
	"github.com/gin-gonic/gin"

	"Charla/controllers"
)

// Register registers share link routes (protected). Only fetching is open
// to members; the rest is owner only.
func Register(g *gin.RouterGroup, d *controllers.Deps) {
	g.GET("/conversations/:id/share", controllers.GetShare(d))
	g.POST("/conversations/:id/share", controllers.CreateShare(d))
	g.PATCH("/conversations/:id/share", controllers.RotateShare(d))
	g.DELETE("/conversations/:id/share", controllers.RevokeShare(d))
	g.POST("/join/:token", controllers.Join(d))
}
