package handlers

import (
	"net/http"

	"matrix-sync/internal/services"

	"github.com/gin-gonic/gin"
)

// EventsHandler ingests booking contract events
type EventsHandler struct {
	incomeService *services.IncomeService
	orderService  *services.OrderService
}

// NewEventsHandler creates a new EventsHandler
func NewEventsHandler(incomeService *services.IncomeService, orderService *services.OrderService) *EventsHandler {
	return &EventsHandler{
		incomeService: incomeService,
		orderService:  orderService,
	}
}

// RecordOrder stores a slot purchase
// POST /api/events/order
func (h *EventsHandler) RecordOrder(c *gin.Context) {
	var event services.OrderEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if event.Price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must not be negative"})
		return
	}

	order, err := h.orderService.RecordOrder(c.Request.Context(), event)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
	})
}

// RecordIncome stores an income transfer. A redelivered transfer answers 200 with duplicate set.
// POST /api/events/income
func (h *EventsHandler) RecordIncome(c *gin.Context) {
	var event services.IncomeEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !event.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}

	txn, created, err := h.incomeService.RecordIncome(c.Request.Context(), event)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"transaction": txn,
		"duplicate":   !created,
	})
}
