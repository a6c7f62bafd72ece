package routes

import (
	"github.com/gin-gonic/gin"

	"playforge/controllers"
)

func RegisterGameRoutes(public, admin *gin.RouterGroup, gameController *controllers.GameController, pollController *controllers.PollController) {
	games := public.Group("/games")
	{
		games.GET("", gameController.ListGames)                    // GET /games?status=
		games.GET("/:id", gameController.GetGame)                  // GET /games/:id (id or slug)
		games.GET("/:id/polls", pollController.ListPolls)          // GET /games/:id/polls
		games.GET("/:id/polls/stream", pollController.StreamPolls) // GET /games/:id/polls/stream (SSE)
	}

	adminGames := admin.Group("/games")
	{
		adminGames.POST("", gameController.CreateGame)       // POST /admin/games
		adminGames.PUT("/:id", gameController.UpdateGame)    // PUT /admin/games/:id
		adminGames.DELETE("/:id", gameController.DeleteGame) // DELETE /admin/games/:id
	}

	studios := admin.Group("/studios")
	{
		studios.POST("", gameController.CreateStudio) // POST /admin/studios
		studios.GET("", gameController.ListStudios)   // GET /admin/studios
	}
}
