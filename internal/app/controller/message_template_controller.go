package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/service"
	"github.com/ikkim/delivery-tracker/internal/middleware"
)

type MessageTemplateController struct {
	templateService service.MessageTemplateService
}

func NewMessageTemplateController(templateService service.MessageTemplateService) *MessageTemplateController {
	return &MessageTemplateController{templateService: templateService}
}

// ListTemplates returns a store's SMS templates
// GET /api/v1/stores/:id/templates
func (ctrl *MessageTemplateController) ListTemplates(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	storeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	templates, err := ctrl.templateService.ListTemplates(principal, storeID)
	if err != nil {
		respondError(c, err, "list store templates")
		return
	}

	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// UpsertTemplate creates or replaces the template for one event
// PUT /api/v1/stores/:id/templates/:event
func (ctrl *MessageTemplateController) UpsertTemplate(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	storeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req service.TemplateInput
	if !bindJSON(c, &req) {
		return
	}

	event := model.EventType(c.Param("event"))
	template, err := ctrl.templateService.UpsertTemplate(principal, storeID, event, req)
	if err != nil {
		respondError(c, err, "save message template")
		return
	}

	log.Info("Message template saved", map[string]interface{}{
		"store_id": storeID,
		"event":    event,
		"active":   template.Active,
	})

	c.JSON(http.StatusOK, gin.H{"template": template})
}

// Variables lists the placeholders each event's template may use
// GET /api/v1/templates/variables
func (ctrl *MessageTemplateController) Variables(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"variables": ctrl.templateService.Variables()})
}
