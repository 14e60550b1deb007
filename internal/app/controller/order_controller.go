package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/delivery-tracker/internal/app/service"
	apperrors "github.com/ikkim/delivery-tracker/internal/errors"
	"github.com/ikkim/delivery-tracker/internal/middleware"
)

type OrderController struct {
	orderService service.OrderService
}

func NewOrderController(orderService service.OrderService) *OrderController {
	return &OrderController{
		orderService: orderService,
	}
}

// CreateOrder places an order together with its first delivery attempt
// POST /api/v1/orders
func (ctrl *OrderController) CreateOrder(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req service.OrderInput
	if !bindJSON(c, &req) {
		return
	}

	order, err := ctrl.orderService.CreateOrder(c.Request.Context(), principal, req)
	if err != nil {
		respondError(c, err, "create order")
		return
	}

	log.Info("Order created", map[string]interface{}{
		"order_id":   order.ID,
		"store_id":   order.StoreID,
		"created_by": principal.UserID,
	})

	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// GetOrders lists the orders visible to the caller, optionally for one store
// GET /api/v1/orders?store=<id>
func (ctrl *OrderController) GetOrders(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var storeID *uint
	if raw := c.Query("store"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid store.")
			return
		}
		v := uint(id)
		storeID = &v
	}

	orders, err := ctrl.orderService.ListOrders(principal, storeID)
	if err != nil {
		respondError(c, err, "list orders")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

// GetOrderByID returns one order with its items
// GET /api/v1/orders/:id
func (ctrl *OrderController) GetOrderByID(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := ctrl.orderService.GetOrder(principal, id)
	if err != nil {
		respondError(c, err, "get order")
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}
