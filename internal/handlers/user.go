package handlers

import (
	"net/http"

	"matrix-sync/internal/services"

	"github.com/gin-gonic/gin"
)

// UserHandler handles user read endpoints
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetUser returns a user with live income
// GET /api/users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// GetGenerations returns the 10-level downline report
// GET /api/users/:id/generations
func (h *UserHandler) GetGenerations(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	levels, err := h.userService.GetGenerations(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"levels": levels})
}

// GetSlots returns the active slot and stored slot records
// GET /api/users/:id/slots
func (h *UserHandler) GetSlots(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	overview, err := h.userService.GetSlots(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

// GetPartners returns the direct referrals of a user
// GET /api/users/:id/partners
func (h *UserHandler) GetPartners(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	partners, err := h.userService.GetDirectPartners(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"partners": partners,
		"count":    len(partners),
	})
}

// GetUserByWallet returns the stored user owning a wallet
// GET /api/wallets/:address
func (h *UserHandler) GetUserByWallet(c *gin.Context) {
	user, err := h.userService.GetUserByWallet(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}
