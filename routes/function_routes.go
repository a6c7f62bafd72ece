package routes

import (
	"github.com/gin-gonic/gin"

	"playforge/controllers"
)

func RegisterFunctionRoutes(public *gin.RouterGroup, frameController *controllers.FrameController) {
	functions := public.Group("/functions")
	{
		functions.POST("/extract-frames", frameController.ExtractFrames) // POST /functions/extract-frames
	}
}
