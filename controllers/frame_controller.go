package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"playforge/services"
	"playforge/utils"
)

type FrameController struct {
	frames *services.FrameService
}

func NewFrameController(frames *services.FrameService) *FrameController {
	return &FrameController{frames: frames}
}

// ExtractFrames always answers with {frameUrls, message}; fetch and upload
// failures come back as 502 with whatever frames were stored.
func (fc *FrameController) ExtractFrames(c *gin.Context) {
	var req services.FrameRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := fc.frames.Extract(c.Request.Context(), req)
	if err != nil {
		var validationErr *services.ValidationError
		if errors.As(err, &validationErr) || result == nil {
			handleError(c, err, "Failed to extract frames")
			return
		}
		utils.LogError("Frame extraction failed", err)
		c.JSON(http.StatusBadGateway, result)
		return
	}
	c.JSON(http.StatusOK, result)
}
