package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oakmarket/marketplace-api/internal/dto"
)

// Every response carries the same envelope so clients can branch on a
// single success flag.

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, dto.Envelope{Success: true, Data: data})
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, dto.Envelope{Success: true, Message: message})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, dto.Envelope{Success: false, Message: message})
}

func badRequest(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, err.Error())
}

func internalError(c *gin.Context) {
	respondError(c, http.StatusInternalServerError, "internal server error")
}
