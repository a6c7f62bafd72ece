package routes

import (
	"github.com/gin-gonic/gin"

	"playforge/controllers"
)

func RegisterPollRoutes(admin *gin.RouterGroup, pollController *controllers.PollController) {
	polls := admin.Group("/polls")
	{
		polls.POST("", pollController.CreatePoll)            // POST /admin/polls
		polls.POST("/:id/toggle", pollController.TogglePoll) // POST /admin/polls/:id/toggle
		polls.DELETE("/:id", pollController.DeletePoll)      // DELETE /admin/polls/:id (options cascade)
	}
}
