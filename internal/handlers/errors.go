package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"matrix-sync/internal/services"

	"github.com/gin-gonic/gin"
)

// respondError maps service errors onto HTTP status codes
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		requestID, _ := c.Get("request_id")
		log.Printf("[HTTP] %s %s failed (request %v): %v", c.Request.Method, c.FullPath(), requestID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal inconsistency"})
	}
}

// parseUserID reads the :id path parameter
func parseUserID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return uint(id), true
}
