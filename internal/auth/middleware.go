package auth

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"matrix-sync/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderWebhookSecret = "X-Webhook-Secret"
	HeaderAdminKey      = "X-Admin-Key"
	HeaderRequestID     = "X-Request-ID"
)

// AuthMiddleware validates JWT tokens and protects routes
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>" format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format. Expected: Bearer <token>",
			})
			c.Abort()
			return
		}

		claims, err := ValidateToken(parts[1])
		if err != nil {
			log.Printf("Auth: token validation failed: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("wallet_address", claims.WalletAddress)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// AdminMiddleware requires an authenticated admin. It must run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := GetRole(c); role != models.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// WebhookMiddleware authenticates event deliveries with a shared secret header.
// An empty secret rejects every delivery.
func WebhookMiddleware(secret string) gin.HandlerFunc {
	return sharedKeyMiddleware(HeaderWebhookSecret, secret)
}

// AdminKeyMiddleware guards bootstrap routes that run before any admin token exists
func AdminKeyMiddleware(key string) gin.HandlerFunc {
	return sharedKeyMiddleware(HeaderAdminKey, key)
}

func sharedKeyMiddleware(header, expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(header)
		if expected == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid " + header,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware tags every request with an id, reusing one sent by the caller
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// GetUserID retrieves the user ID from the context
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}

	id, ok := userID.(uint)
	return id, ok
}

// GetWalletAddress retrieves the wallet address from the context
func GetWalletAddress(c *gin.Context) (string, bool) {
	addr, exists := c.Get("wallet_address")
	if !exists {
		return "", false
	}

	address, ok := addr.(string)
	return address, ok
}

// GetRole retrieves the role from the context
func GetRole(c *gin.Context) (string, bool) {
	role, exists := c.Get("role")
	if !exists {
		return "", false
	}

	r, ok := role.(string)
	return r, ok
}
