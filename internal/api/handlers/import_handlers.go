package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/fulfillment-engine/internal/application"
	"github.com/wms-platform/fulfillment-engine/pkg/logging"
	"github.com/wms-platform/fulfillment-engine/pkg/middleware"
)

// ImportHandlers contains handlers for host system import batches
type ImportHandlers struct {
	service *application.ImportService
	logger  *logging.Logger
}

// NewImportHandlers creates a new ImportHandlers
func NewImportHandlers(service *application.ImportService, logger *logging.Logger) *ImportHandlers {
	return &ImportHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers import routes on the router
func (h *ImportHandlers) RegisterRoutes(router *gin.RouterGroup) {
	imports := router.Group("/imports")
	{
		imports.POST("/orders", h.ImportOrders)
		imports.POST("/inventory", h.ImportInventory)
		imports.POST("/layout", h.ImportLayout)
	}
}

// ImportOrders handles an order detail import batch
func (h *ImportHandlers) ImportOrders(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var cmd application.ImportOrdersCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		responder.RespondBadRequest(err.Error())
		return
	}

	summary, err := h.service.ImportOrders(c.Request.Context(), cmd)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ImportInventory handles an item master and stock location import batch
func (h *ImportHandlers) ImportInventory(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var cmd application.ImportInventoryCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		responder.RespondBadRequest(err.Error())
		return
	}

	if err := h.service.ImportInventory(c.Request.Context(), cmd); err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": len(cmd.Items),
		"stock": len(cmd.Stock),
	})
}

// ImportLayout handles a path and location geometry import batch
func (h *ImportHandlers) ImportLayout(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var cmd application.ImportLayoutCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		responder.RespondBadRequest(err.Error())
		return
	}

	if err := h.service.ImportLayout(c.Request.Context(), cmd); err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"locations": len(cmd.Locations),
		"paths":     len(cmd.Paths),
	})
}
