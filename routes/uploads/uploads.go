package uploads

import (
	"github.com/gin-gonic/gin"

	"Charla/controllers"
	"Charla/middleware"
	"Charla/pkg/storage"
)

// RegisterPublic serves local blobs under /uploads. Nothing is mounted for
// remote backends.
func RegisterPublic(r *gin.Engine, d *controllers.Deps) {
	if local, ok := d.Blobs.(*storage.LocalStore); ok {
		r.Static("/uploads", local.BasePath())
	}
}

// Register registers upload and download routes (protected).
func Register(g *gin.RouterGroup, d *controllers.Deps) {
	g.POST("/upload", middleware.RateLimit(), controllers.Upload(d))
	g.GET("/download/:id", controllers.Download(d))
}
