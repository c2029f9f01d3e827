package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/fulfillment-engine/internal/application"
	"github.com/wms-platform/fulfillment-engine/pkg/logging"
	"github.com/wms-platform/fulfillment-engine/pkg/middleware"
)

// AdminHandlers contains handlers for order queries and maintenance
type AdminHandlers struct {
	fulfillment *application.FulfillmentService
	purge       *application.PurgeService
	logger      *logging.Logger
}

// NewAdminHandlers creates a new AdminHandlers
func NewAdminHandlers(fulfillment *application.FulfillmentService, purge *application.PurgeService, logger *logging.Logger) *AdminHandlers {
	return &AdminHandlers{
		fulfillment: fulfillment,
		purge:       purge,
		logger:      logger,
	}
}

// RegisterRoutes registers admin routes on the router
func (h *AdminHandlers) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/orders/:orderId", h.GetOrder)
	router.GET("/instructions", h.ListInstructions)
	router.POST("/purge", h.Purge)
}

// GetOrder returns one order with its details
func (h *AdminHandlers) GetOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	orderID := c.Param("orderId")
	order, err := h.fulfillment.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListInstructions returns the active work instructions for a set of orders
func (h *AdminHandlers) ListInstructions(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	raw := c.Query("orders")
	if raw == "" {
		responder.RespondBadRequest("orders query parameter is required")
		return
	}

	var orderIDs []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			orderIDs = append(orderIDs, id)
		}
	}

	instructions, err := h.fulfillment.ActiveInstructions(c.Request.Context(), orderIDs)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"instructions": instructions})
}

// Purge removes terminally completed records past the retention window
func (h *AdminHandlers) Purge(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	result, err := h.purge.Purge(c.Request.Context())
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, result)
}
