package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/delivery-tracker/internal/app/service"
	"github.com/ikkim/delivery-tracker/internal/middleware"
)

type DeliveryAttemptController struct {
	attemptService service.DeliveryAttemptService
}

func NewDeliveryAttemptController(attemptService service.DeliveryAttemptService) *DeliveryAttemptController {
	return &DeliveryAttemptController{attemptService: attemptService}
}

// CreateAttempt schedules a redelivery for an order
// POST /api/v1/orders/:id/attempts
func (ctrl *DeliveryAttemptController) CreateAttempt(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req service.AttemptInput
	if !bindJSON(c, &req) {
		return
	}

	attempt, err := ctrl.attemptService.CreateAttempt(c.Request.Context(), principal, orderID, req)
	if err != nil {
		respondError(c, err, "create delivery attempt")
		return
	}

	log.Info("Delivery attempt created", map[string]interface{}{
		"order_id":   orderID,
		"attempt_id": attempt.ID,
		"status":     attempt.Status,
	})

	c.JSON(http.StatusCreated, gin.H{"attempt": attempt})
}

// ListAttempts returns every attempt of an order, oldest first
// GET /api/v1/orders/:id/attempts
func (ctrl *DeliveryAttemptController) ListAttempts(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	attempts, err := ctrl.attemptService.ListAttempts(principal, orderID)
	if err != nil {
		respondError(c, err, "list delivery attempts")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempts": attempts,
		"count":    len(attempts),
	})
}

// GetAttempt returns one attempt
// GET /api/v1/attempts/:id
func (ctrl *DeliveryAttemptController) GetAttempt(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	attempt, err := ctrl.attemptService.GetAttempt(principal, id)
	if err != nil {
		respondError(c, err, "get delivery attempt")
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempt": attempt})
}

// UpdateAttempt applies a partial update, including status transitions
// PATCH /api/v1/attempts/:id
func (ctrl *DeliveryAttemptController) UpdateAttempt(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req service.AttemptInput
	if !bindJSON(c, &req) {
		return
	}

	attempt, err := ctrl.attemptService.UpdateAttempt(c.Request.Context(), principal, id, req)
	if err != nil {
		respondError(c, err, "update delivery attempt")
		return
	}

	log.Info("Delivery attempt updated", map[string]interface{}{
		"attempt_id": attempt.ID,
		"status":     attempt.Status,
		"version":    attempt.Version,
	})

	c.JSON(http.StatusOK, gin.H{"attempt": attempt})
}

// StatusHistory returns the status changes of an attempt, oldest first
// GET /api/v1/attempts/:id/history
func (ctrl *DeliveryAttemptController) StatusHistory(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	history, err := ctrl.attemptService.StatusHistory(principal, id)
	if err != nil {
		respondError(c, err, "get delivery attempt history")
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}
