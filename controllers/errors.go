package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"playforge/gateway"
	"playforge/services"
	"playforge/utils"
)

// handleError maps service errors onto HTTP statuses.
func handleError(c *gin.Context, err error, defaultMessage string) {
	var (
		validationErr *services.ValidationError
		partialErr    *services.PartialFailure
		remoteErr     *gateway.RemoteError
	)

	switch {
	case errors.As(err, &validationErr):
		utils.BadRequestResponse(c, validationErr.Message, validationErr)
	case errors.As(err, &partialErr):
		utils.InternalServerErrorResponse(c, partialErr.Error(), gin.H{
			"step":        partialErr.Step,
			"compensated": partialErr.Compensated,
		})
	case gateway.IsNotFound(err):
		utils.NotFoundResponse(c, "Record not found")
	case errors.As(err, &remoteErr):
		utils.LogError(defaultMessage, err)
		utils.BadGatewayResponse(c, defaultMessage, remoteErr.Message)
	default:
		utils.LogError(defaultMessage, err)
		utils.ErrorResponse(c, http.StatusInternalServerError, defaultMessage, err.Error())
	}
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, "Invalid request data", err.Error())
		return false
	}
	return true
}
