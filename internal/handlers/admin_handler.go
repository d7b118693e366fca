package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"matrix-sync/internal/blockchain"
	"matrix-sync/internal/services"

	"github.com/gin-gonic/gin"
)

// CacheInvalidator drops derived views after maintenance
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// ChainDiagnostics checks the chain reader's RPC and contracts
type ChainDiagnostics interface {
	RunDiagnostics(ctx context.Context) *blockchain.DiagnosticResult
}

// AdminHandler handles referral forest maintenance endpoints
type AdminHandler struct {
	referralService *services.ReferralService
	cache           CacheInvalidator
	diagnostics     ChainDiagnostics
}

// NewAdminHandler creates a new AdminHandler. cache and diagnostics may be nil.
func NewAdminHandler(referralService *services.ReferralService, cache CacheInvalidator, diagnostics ChainDiagnostics) *AdminHandler {
	return &AdminHandler{
		referralService: referralService,
		cache:           cache,
		diagnostics:     diagnostics,
	}
}

// Reconcile recomputes team counters for every user
// POST /api/admin/reconcile
func (h *AdminHandler) Reconcile(c *gin.Context) {
	start := time.Now()
	if err := h.referralService.ReconcileTeams(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.InvalidateAll(c.Request.Context()); err != nil {
			log.Printf("[Admin] Failed to invalidate report cache: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "reconciled",
		"duration": time.Since(start).String(),
	})
}

// Backfill creates every missing user now and reports per-id failures
// POST /api/admin/backfill
func (h *AdminHandler) Backfill(c *gin.Context) {
	created, err := h.referralService.BackfillMissingUsers(c.Request.Context())

	response := gin.H{"created": created}
	if err != nil {
		log.Printf("[Admin] Backfill finished with errors: %v", err)
		response["errors"] = err.Error()
	}
	c.JSON(http.StatusOK, response)
}

// Missing lists the gap set of user ids
// GET /api/admin/missing
func (h *AdminHandler) Missing(c *gin.Context) {
	missing, err := h.referralService.MissingUserIDs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"missing": missing,
		"count":   len(missing),
	})
}

// Diagnostics reports RPC connectivity and contract deployment
// GET /api/admin/diagnostics
func (h *AdminHandler) Diagnostics(c *gin.Context) {
	if h.diagnostics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "diagnostics not available"})
		return
	}

	result := h.diagnostics.RunDiagnostics(c.Request.Context())
	status := http.StatusOK
	if !result.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}
