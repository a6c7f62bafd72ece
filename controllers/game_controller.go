package controllers

import (
	"github.com/gin-gonic/gin"

	"playforge/models"
	"playforge/services"
	"playforge/utils"
)

type GameController struct {
	games  *services.GameService
	boards *services.PollBoards
}

func NewGameController(games *services.GameService, boards *services.PollBoards) *GameController {
	return &GameController{games: games, boards: boards}
}

func (gc *GameController) ListGames(c *gin.Context) {
	games, err := gc.games.ListGames(c.Request.Context(), models.GameStatus(c.Query("status")))
	if err != nil {
		handleError(c, err, "Failed to retrieve games")
		return
	}
	utils.SuccessResponse(c, "Games retrieved successfully", games)
}

// GetGame accepts either the game id or its slug.
func (gc *GameController) GetGame(c *gin.Context) {
	game, err := gc.games.GetGame(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err, "Failed to retrieve game")
		return
	}
	utils.SuccessResponse(c, "Game retrieved successfully", game)
}

func (gc *GameController) CreateGame(c *gin.Context) {
	var req services.CreateGameInput
	if !bindJSON(c, &req) {
		return
	}

	game, err := gc.games.CreateGame(c.Request.Context(), req)
	if err != nil {
		handleError(c, err, "Failed to create game")
		return
	}
	utils.CreatedResponse(c, "Game created successfully", game)
}

func (gc *GameController) UpdateGame(c *gin.Context) {
	var req services.GameInput
	if !bindJSON(c, &req) {
		return
	}

	game, err := gc.games.UpdateGame(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		handleError(c, err, "Failed to update game")
		return
	}
	utils.SuccessResponse(c, "Game updated successfully", game)
}

func (gc *GameController) DeleteGame(c *gin.Context) {
	gameID := c.Param("id")
	if err := gc.games.DeleteGame(c.Request.Context(), gameID); err != nil {
		handleError(c, err, "Failed to delete game")
		return
	}
	gc.boards.Forget(gameID)
	utils.SuccessResponse(c, "Game deleted successfully", nil)
}

func (gc *GameController) CreateStudio(c *gin.Context) {
	var req services.StudioInput
	if !bindJSON(c, &req) {
		return
	}

	studio, err := gc.games.CreateStudio(c.Request.Context(), req)
	if err != nil {
		handleError(c, err, "Failed to create studio")
		return
	}
	utils.CreatedResponse(c, "Studio created successfully", studio)
}

func (gc *GameController) ListStudios(c *gin.Context) {
	studios, err := gc.games.ListStudios(c.Request.Context())
	if err != nil {
		handleError(c, err, "Failed to retrieve studios")
		return
	}
	utils.SuccessResponse(c, "Studios retrieved successfully", studios)
}
