package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/domain/app"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/domain/resumption"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// HMILink reports the state of the head unit connection
type HMILink interface {
	Connected() bool
}

// HMIRequests reports requests waiting for a head unit reply
type HMIRequests interface {
	Pending() int
}

// Handlers contains all HTTP handlers
type Handlers struct {
	registry *app.Manager
	ctrl     *resumption.Controller
	link     HMILink
	requests HMIRequests
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(registry *app.Manager, ctrl *resumption.Controller, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		registry: registry,
		ctrl:     ctrl,
		logger:   logger.Named("http"),
	}
}

// WithHMI adds head unit connection status to health reports
func (h *Handlers) WithHMI(link HMILink, requests HMIRequests) *Handlers {
	h.link = link
	h.requests = requests
	return h
}

// WithMetrics adds metrics tracking to the handlers
func (h *Handlers) WithMetrics(metrics *monitoring.Metrics) *Handlers {
	h.metrics = metrics
	return h
}

// Register mounts the routes on router
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	apps := router.Group("/apps")
	apps.GET("", h.ListApps)
	apps.POST("", h.RegisterApp)
	apps.GET("/:id", h.GetApp)
	apps.DELETE("/:id", h.UnregisterApp)
	apps.PUT("/:id/content", h.UpdateContent)
	apps.POST("/:id/activate", h.ActivateApp)

	res := router.Group("/resumption")
	res.GET("/records", h.ListRecords)
	res.DELETE("/records/:policyAppId/:deviceId", h.RemoveRecord)
	res.GET("/pending", h.ListPending)
	res.POST("/persist", h.Persist)

	lifecycle := router.Group("/lifecycle")
	lifecycle.POST("/suspend", h.Suspend)
	lifecycle.POST("/awake", h.Awake)
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "HeadUnit resumption service",
		"version": "0.1.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	hmiStatus := gin.H{"connected": false}
	if h.link != nil {
		hmiStatus["connected"] = h.link.Connected()
	}
	if h.requests != nil {
		hmiStatus["pending_requests"] = h.requests.Pending()
	}

	body := gin.H{
		"status":     "healthy",
		"apps":       h.registry.Stats(),
		"resumption": h.ctrl.Stats(),
		"hmi":        hmiStatus,
	}
	if h.metrics != nil {
		body["uptime_seconds"] = h.metrics.Uptime().Seconds()
	}
	c.JSON(http.StatusOK, body)
}

// ListApps lists registered applications, optionally filtered by HMI level
func (h *Handlers) ListApps(c *gin.Context) {
	var level *types.HMILevel
	if raw := c.Query("level"); raw != "" {
		l := types.HMILevel(raw)
		if !l.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hmi level"})
			return
		}
		level = &l
	}

	c.JSON(http.StatusOK, gin.H{
		"apps":  h.registry.List(level),
		"stats": h.registry.Stats(),
	})
}

// GetApp returns one registered application
func (h *Handlers) GetApp(c *gin.Context) {
	id, ok := appID(c)
	if !ok {
		return
	}
	a, found := h.registry.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"app":   a,
		"state": h.ctrl.State(id),
	})
}

// RegisterApp registers an application and resumes it when a record exists.
// The registration window stays open until the resumption has been started.
func (h *Handlers) RegisterApp(c *gin.Context) {
	t := monitoring.NewTimer(h.metrics, "http", "register_app")

	var req app.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		t.Stop("invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.ctrl.OnAppRegistrationStart(req.PolicyAppID, req.DeviceID)
	defer h.ctrl.OnAppRegistrationEnd(req.PolicyAppID, req.DeviceID)

	if req.HMIAppID == 0 {
		req.HMIAppID = h.ctrl.GetHMIApplicationID(req.PolicyAppID, req.DeviceID)
	}

	registered, err := h.registry.Register(req)
	if errors.Is(err, app.ErrAlreadyRegistered) {
		t.Stop("conflict")
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		t.Stop("error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	result := "SUCCESS"
	if req.HashID != "" {
		if !h.ctrl.StartResumption(registered, req.HashID) {
			result = "RESUME_FAILED"
		}
	} else {
		h.ctrl.StartResumptionOnlyHMILevel(registered)
	}

	current, _ := h.registry.Get(registered.ID)
	if current == nil {
		current = registered
	}
	t.Stop("ok")
	c.JSON(http.StatusCreated, gin.H{
		"app":         current,
		"result_code": result,
		"resumption": gin.H{
			"state":   h.ctrl.State(registered.ID),
			"pending": h.ctrl.IsPending(registered.ID),
		},
	})
}

// UnregisterApp unregisters an application and saves its state
func (h *Handlers) UnregisterApp(c *gin.Context) {
	id, ok := appID(c)
	if !ok {
		return
	}
	a, found := h.registry.Unregister(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not found"})
		return
	}
	h.ctrl.OnApplicationUnregistered(c.Request.Context(), a)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"app_id":  id,
		"saved":   h.ctrl.IsApplicationSaved(a.PolicyAppID, a.DeviceID),
	})
}

type contentRequest struct {
	Content types.Content `json:"content"`
	HashID  string        `json:"hash_id"`
}

// UpdateContent replaces the content an application has built on the head unit
func (h *Handlers) UpdateContent(c *gin.Context) {
	id, ok := appID(c)
	if !ok {
		return
	}
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.registry.UpdateContent(id, req.Content) {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not found"})
		return
	}
	if req.HashID != "" {
		h.registry.SetHashID(id, req.HashID)
	}
	h.ctrl.ApplicationsDataUpdated()

	a, _ := h.registry.Get(id)
	c.JSON(http.StatusOK, gin.H{"app": a})
}

// ActivateApp brings an application to FULL as the user would. A pending
// HMI level restoration of the application is cancelled.
func (h *Handlers) ActivateApp(c *gin.Context) {
	id, ok := appID(c)
	if !ok {
		return
	}
	a, found := h.registry.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not found"})
		return
	}

	cancelled := h.ctrl.OnAppActivated(a)
	h.registry.SetHMILevel(id, types.HMILevelFull)
	if a.IsAudioApp() {
		h.registry.SetAudioStreamingState(id, types.AudioAudible)
	}

	a, _ = h.registry.Get(id)
	c.JSON(http.StatusOK, gin.H{
		"app":                  a,
		"resumption_cancelled": cancelled,
	})
}

// appID parses the :id path parameter, writing a 400 on failure
func appID(c *gin.Context) (uint32, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid app id"})
		return 0, false
	}
	return uint32(id), true
}
