package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/domain/resumption"
)

// ListRecords lists the saved resumption records
func (h *Handlers) ListRecords(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"records": h.ctrl.Records(),
		"stats":   h.ctrl.Stats(),
	})
}

// ListPending lists applications waiting for their HMI level
func (h *Handlers) ListPending(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"pending": h.ctrl.Pending(),
	})
}

// RemoveRecord deletes a saved record and flushes
func (h *Handlers) RemoveRecord(c *gin.Context) {
	policyAppID := c.Param("policyAppId")
	deviceID := c.Param("deviceId")

	if !h.ctrl.RemoveApplicationFromSaved(policyAppID, deviceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}

	persisted := true
	if err := h.ctrl.Persist(c.Request.Context()); err != nil {
		h.logger.Warn("record removed but not persisted",
			zap.String("policy_app_id", policyAppID),
			zap.String("device_id", deviceID),
			zap.Error(err))
		persisted = false
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"persisted": persisted,
	})
}

// Persist flushes the saved records now
func (h *Handlers) Persist(c *gin.Context) {
	err := h.ctrl.Persist(c.Request.Context())
	switch {
	case errors.Is(err, resumption.ErrFlushSkipped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "stats": h.ctrl.Stats()})
	}
}

// Suspend handles ignition-off
func (h *Handlers) Suspend(c *gin.Context) {
	if err := h.ctrl.OnSuspend(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": h.ctrl.Stats()})
}

// Awake handles ignition-on
func (h *Handlers) Awake(c *gin.Context) {
	h.ctrl.OnAwake()
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": h.ctrl.Stats()})
}
