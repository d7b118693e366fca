package handlers

import (
	"net/http"

	"matrix-sync/internal/auth"
	"matrix-sync/internal/blockchain"
	"matrix-sync/internal/models"
	"matrix-sync/internal/services"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles onboarding endpoints
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user *models.User, isNewUser bool) {
	token, err := auth.GenerateToken(user.UserID, user.WalletAddress, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(status, gin.H{
		"token":       token,
		"user":        user,
		"is_new_user": isNewUser,
	})
}

// WalletLogin logs in a wallet, registering it from its on-chain record on first sight
// POST /auth/wallet
func (h *AuthHandler) WalletLogin(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"wallet_address" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, ok := blockchain.NormalizeAddress(req.WalletAddress); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}

	user, isNewUser, err := h.authService.LoginOrRegister(c.Request.Context(), req.WalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if isNewUser {
		status = http.StatusCreated
	}
	h.respondWithToken(c, status, user, isNewUser)
}

// RegisterOwner creates the owner account at the root of the referral forest
// POST /auth/owner
func (h *AuthHandler) RegisterOwner(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"wallet_address" binding:"required"`
		FullName      string `json:"full_name" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, ok := blockchain.NormalizeAddress(req.WalletAddress); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}

	user, err := h.authService.RegisterOwner(c.Request.Context(), req.WalletAddress, req.FullName)
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondWithToken(c, http.StatusCreated, user, true)
}

// GetMe returns the currently authenticated user's stored profile
// GET /auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.authService.GetUserByUserID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": user,
	})
}
