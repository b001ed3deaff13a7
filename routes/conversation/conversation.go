package conversation

import (
	"github.com/gin-gonic/gin"

	"Charla/controllers"
)

// Register registers conversation routes (protected)
func Register(g *gin.RouterGroup, d *controllers.Deps) {
	g.GET("/conversations", controllers.ListConversations(d))
	g.GET("/conversations/:id", controllers.GetConversation(d))
	g.PATCH("/conversations/:id", controllers.RenameConversation(d))
	g.DELETE("/conversations/:id", controllers.DeleteConversation(d))
	g.GET("/conversations/:id/members", controllers.ListMembers(d))
}
