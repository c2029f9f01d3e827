package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/fulfillment-engine/internal/application"
	"github.com/wms-platform/fulfillment-engine/internal/che"
	"github.com/wms-platform/fulfillment-engine/pkg/errors"
	"github.com/wms-platform/fulfillment-engine/pkg/logging"
	"github.com/wms-platform/fulfillment-engine/pkg/metrics"
	"github.com/wms-platform/fulfillment-engine/pkg/middleware"
)

// DeviceHandlers contains handlers for device session operations
type DeviceHandlers struct {
	registry *che.Registry
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewDeviceHandlers creates a new DeviceHandlers
func NewDeviceHandlers(registry *che.Registry, logger *logging.Logger, m *metrics.Metrics) *DeviceHandlers {
	return &DeviceHandlers{
		registry: registry,
		logger:   logger,
		metrics:  m,
	}
}

// RegisterRoutes registers device routes on the router
func (h *DeviceHandlers) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.POST("/:deviceId/scan", h.Scan)
		devices.POST("/:deviceId/button", h.Button)
		devices.GET("/:deviceId/display", h.Display)
		devices.GET("/:deviceId/summary", h.Summary)
		devices.DELETE("/:deviceId/session", h.CloseSession)
	}
}

// Scan delivers one scanned token to the device's session
func (h *DeviceHandlers) Scan(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		Token string `json:"token" binding:"required"`
		Mode  string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		responder.RespondBadRequest(err.Error())
		return
	}

	cmd := application.ScanCommand{
		DeviceID: c.Param("deviceId"),
		Token:    req.Token,
		Mode:     req.Mode,
	}
	if err := application.Validate(cmd); err != nil {
		responder.RespondWithError(err)
		return
	}

	mode, ok := sessionMode(cmd.Mode)
	if !ok {
		responder.RespondBadRequest("unknown process mode " + cmd.Mode)
		return
	}

	ev, err := che.ParseScan(cmd.Token)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordScanEvent("invalid", "rejected")
		}
		responder.RespondWithError(err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordScanEvent(tokenKind(ev), "accepted")
	}

	session := h.registry.GetOrCreate(cmd.DeviceID, mode)
	cmds, err := session.Dispatch(c.Request.Context(), ev)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"display": cmds})
}

// Button delivers one position button press to the device's session
func (h *DeviceHandlers) Button(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		Position int    `json:"position" binding:"required"`
		Quantity int    `json:"quantity"`
		Mode     string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		responder.RespondBadRequest(err.Error())
		return
	}

	cmd := application.ButtonCommand{
		DeviceID: c.Param("deviceId"),
		Position: req.Position,
		Quantity: req.Quantity,
		Mode:     req.Mode,
	}
	if err := application.Validate(cmd); err != nil {
		responder.RespondWithError(err)
		return
	}

	mode, ok := sessionMode(cmd.Mode)
	if !ok {
		responder.RespondBadRequest("unknown process mode " + cmd.Mode)
		return
	}

	session := h.registry.GetOrCreate(cmd.DeviceID, mode)
	cmds, err := session.Dispatch(c.Request.Context(), che.ButtonPress{
		Position: cmd.Position,
		Quantity: cmd.Quantity,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"display": cmds})
}

// Display returns the current display commands for the device
func (h *DeviceHandlers) Display(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	deviceID := c.Param("deviceId")
	session, ok := h.registry.Get(deviceID)
	if !ok {
		responder.RespondWithAppError(errors.ErrNotFoundWithID("device session", deviceID))
		return
	}

	var cmds []che.DisplayCommand
	err := session.Inspect(c.Request.Context(), func(m *che.Machine) {
		cmds = m.Render()
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"display": cmds})
}

// Summary returns the live work counts for the device's session
func (h *DeviceHandlers) Summary(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	deviceID := c.Param("deviceId")
	session, ok := h.registry.Get(deviceID)
	if !ok {
		responder.RespondWithAppError(errors.ErrNotFoundWithID("device session", deviceID))
		return
	}

	var summary che.Summary
	var state che.State
	err := session.Inspect(c.Request.Context(), func(m *che.Machine) {
		summary = m.Summary()
		state = m.State()
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary, "state": state})
}

// CloseSession terminates the device's session
func (h *DeviceHandlers) CloseSession(c *gin.Context) {
	deviceID := c.Param("deviceId")
	h.registry.Remove(deviceID)
	c.JSON(http.StatusOK, gin.H{"deviceId": deviceID, "closed": true})
}

func sessionMode(raw string) (che.ProcessMode, bool) {
	if raw == "" {
		return che.ModePick, true
	}
	mode := che.ProcessMode(raw)
	return mode, mode.IsValid()
}

func tokenKind(ev che.Event) string {
	switch ev.(type) {
	case che.BadgeScan:
		return "badge"
	case che.ContainerScan:
		return "container"
	case che.PositionScan:
		return "position"
	case che.LocationScan:
		return "location"
	case che.CommandScan:
		return "command"
	case che.TapeScan:
		return "tape"
	case che.RawScan:
		return "raw"
	default:
		return "unknown"
	}
}
