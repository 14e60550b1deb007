package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/delivery-tracker/internal/app/service"
	"github.com/ikkim/delivery-tracker/internal/middleware"
)

type StoreController struct {
	storeService service.StoreService
}

func NewStoreController(storeService service.StoreService) *StoreController {
	return &StoreController{storeService: storeService}
}

// ListStores returns the stores the caller belongs to (all for superusers)
// GET /api/v1/stores
func (ctrl *StoreController) ListStores(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	stores, err := ctrl.storeService.ListStores(principal)
	if err != nil {
		respondError(c, err, "list stores")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stores": stores,
		"count":  len(stores),
	})
}

// GET /api/v1/stores/:id
func (ctrl *StoreController) GetStore(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	store, err := ctrl.storeService.GetStore(principal, id)
	if err != nil {
		respondError(c, err, "get store")
		return
	}

	c.JSON(http.StatusOK, gin.H{"store": store})
}

// POST /api/v1/stores
func (ctrl *StoreController) CreateStore(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req service.StoreInput
	if !bindJSON(c, &req) {
		return
	}

	store, err := ctrl.storeService.CreateStore(principal, req)
	if err != nil {
		respondError(c, err, "create store")
		return
	}

	log.Info("Store created", map[string]interface{}{
		"store_id": store.ID,
	})
	c.JSON(http.StatusCreated, gin.H{"store": store})
}

// PATCH /api/v1/stores/:id
func (ctrl *StoreController) UpdateStore(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req service.StoreInput
	if !bindJSON(c, &req) {
		return
	}

	store, err := ctrl.storeService.UpdateStore(principal, id, req)
	if err != nil {
		respondError(c, err, "update store")
		return
	}

	c.JSON(http.StatusOK, gin.H{"store": store})
}
