package app

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// ErrAlreadyRegistered is returned when the application is already registered from the same device
var ErrAlreadyRegistered = errors.New("application already registered")

// RegisterRequest describes an application completing RegisterAppInterface
type RegisterRequest struct {
	PolicyAppID  string `json:"policy_app_id" binding:"required"`
	DeviceID     string `json:"device_id" binding:"required"`
	DeviceMAC    string `json:"device_mac"`
	Name         string `json:"name"`
	IsMedia      bool   `json:"is_media"`
	IsNavigation bool   `json:"is_navigation"`
	HashID       string `json:"hash_id"`
	// HMIAppID requests a specific HMI app id, zero to allocate one
	HMIAppID uint32 `json:"hmi_app_id"`
}

// Manager is the application registry
type Manager struct {
	mu        sync.RWMutex
	apps      map[uint32]*types.App // Protected by mu
	activeID  *uint32               // Protected by mu
	nextID    uint32
	nextHMIID uint32
	reserved  func(hmiAppID uint32, policyAppID, deviceID string) bool
	now       func() time.Time
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// NewManager creates a new application registry
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		apps:      make(map[uint32]*types.App),
		nextID:    1,
		nextHMIID: 1,
		now:       time.Now,
		logger:    logger.Named("apps"),
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// WithReservedHMIAppIDs excludes HMI app ids held by the saved records of
// other applications. reserved reports whether hmiAppID belongs to a record
// other than (policyAppID, deviceID); it applies to requested ids and to
// allocation alike.
func (m *Manager) WithReservedHMIAppIDs(reserved func(hmiAppID uint32, policyAppID, deviceID string) bool) *Manager {
	m.mu.Lock()
	m.reserved = reserved
	m.mu.Unlock()
	return m
}

// Register adds a live application in HMI level NONE
func (m *Manager) Register(req RegisterRequest) (*types.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.apps {
		if existing.PolicyAppID == req.PolicyAppID && existing.DeviceID == req.DeviceID {
			return nil, ErrAlreadyRegistered
		}
	}

	hmiAppID := req.HMIAppID
	if hmiAppID == 0 || m.hmiIDInUse(hmiAppID) || m.isReserved(hmiAppID, req.PolicyAppID, req.DeviceID) {
		hmiAppID = m.allocateHMIID(req.PolicyAppID, req.DeviceID)
	}

	name := req.Name
	if name == "" {
		name = req.PolicyAppID
	}

	app := &types.App{
		ID:           m.nextID,
		HMIAppID:     hmiAppID,
		PolicyAppID:  req.PolicyAppID,
		DeviceID:     req.DeviceID,
		DeviceMAC:    req.DeviceMAC,
		Name:         name,
		IsMedia:      req.IsMedia,
		IsNavigation: req.IsNavigation,
		HashID:       req.HashID,
		HMILevel:     types.HMILevelNone,
		AudioState:   types.AudioNotAudible,
		RegisteredAt: m.now(),
	}
	m.nextID++
	m.apps[app.ID] = app
	m.updateGauge()

	m.logger.Info("application registered",
		zap.Uint32("app_id", app.ID),
		zap.Uint32("hmi_app_id", app.HMIAppID),
		zap.String("policy_app_id", app.PolicyAppID),
		zap.String("device_id", app.DeviceID))

	return app.Clone(), nil
}

// hmiIDInUse must hold lock
func (m *Manager) hmiIDInUse(id uint32) bool {
	for _, app := range m.apps {
		if app.HMIAppID == id {
			return true
		}
	}
	return false
}

// isReserved must hold lock
func (m *Manager) isReserved(id uint32, policyAppID, deviceID string) bool {
	return m.reserved != nil && m.reserved(id, policyAppID, deviceID)
}

// allocateHMIID must hold lock
func (m *Manager) allocateHMIID(policyAppID, deviceID string) uint32 {
	for {
		id := m.nextHMIID
		m.nextHMIID++
		if m.hmiIDInUse(id) {
			continue
		}
		if m.isReserved(id, policyAppID, deviceID) {
			continue
		}
		return id
	}
}

// Unregister removes an application and returns its last state
func (m *Manager) Unregister(id uint32) (*types.App, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, false
	}
	delete(m.apps, id)
	if m.activeID != nil && *m.activeID == id {
		m.activeID = nil
	}
	m.updateGauge()

	m.logger.Info("application unregistered", zap.Uint32("app_id", id))
	return app, true
}

// Get retrieves an app by ID
func (m *Manager) Get(id uint32) (*types.App, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, false
	}
	// Return a copy to prevent external modifications
	return app.Clone(), true
}

// FindByPolicyAndDevice finds a live application by its identity
func (m *Manager) FindByPolicyAndDevice(policyAppID, deviceID string) (*types.App, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, app := range m.apps {
		if app.PolicyAppID == policyAppID && app.DeviceID == deviceID {
			return app.Clone(), true
		}
	}
	return nil, false
}

// FindByHMIAppID returns the application known to the head unit by hmiAppID
func (m *Manager) FindByHMIAppID(hmiAppID uint32) (*types.App, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, app := range m.apps {
		if app.HMIAppID == hmiAppID {
			return app.Clone(), true
		}
	}
	return nil, false
}

// List returns all apps ordered by id, optionally filtered by HMI level
func (m *Manager) List(level *types.HMILevel) []*types.App {
	m.mu.RLock()
	defer m.mu.RUnlock()

	apps := make([]*types.App, 0, len(m.apps))
	for _, app := range m.apps {
		if level == nil || app.HMILevel == *level {
			apps = append(apps, app.Clone())
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].ID < apps[j].ID })
	return apps
}

// ActiveApp returns the application in HMI level FULL
func (m *Manager) ActiveApp() (*types.App, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.activeID == nil {
		return nil, false
	}
	app, ok := m.apps[*m.activeID]
	if !ok {
		return nil, false
	}
	return app.Clone(), true
}

// SetHMILevel changes an application's HMI level. Only one application can
// be in FULL: the previous one drops to LIMITED when it is an audio
// application, otherwise to BACKGROUND.
func (m *Manager) SetHMILevel(id uint32, level types.HMILevel) bool {
	if !level.Valid() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return false
	}

	if level == types.HMILevelFull {
		if m.activeID != nil && *m.activeID != id {
			if current, exists := m.apps[*m.activeID]; exists && current.HMILevel == types.HMILevelFull {
				if current.IsAudioApp() {
					current.HMILevel = types.HMILevelLimited
				} else {
					current.HMILevel = types.HMILevelBackground
					current.AudioState = types.AudioNotAudible
				}
			}
		}
		activeID := id
		m.activeID = &activeID
	} else if m.activeID != nil && *m.activeID == id {
		m.activeID = nil
	}

	app.HMILevel = level
	return true
}

// SetAudioStreamingState changes an application's audio state
func (m *Manager) SetAudioStreamingState(id uint32, state types.AudioStreamingState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return false
	}
	app.AudioState = state
	return true
}

// SetHashID records a new content fingerprint supplied by the application
func (m *Manager) SetHashID(id uint32, hashID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return false
	}
	app.HashID = hashID
	return true
}

// UpdateContent replaces an application's session content
func (m *Manager) UpdateContent(id uint32, content types.Content) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return false
	}
	app.Content = content.Clone()
	return true
}

// RestoreContent merges restored content into the application. Entries the
// application already re-created keep their live version.
func (m *Manager) RestoreContent(id uint32, content types.Content) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return false
	}
	app.Content = mergeContent(app.Content, content.Clone())
	return true
}

// Stats returns manager statistics
func (m *Manager) Stats() types.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := types.Stats{TotalApps: len(m.apps)}
	for _, app := range m.apps {
		switch app.HMILevel {
		case types.HMILevelFull:
			stats.FullApps++
		case types.HMILevelLimited:
			stats.LimitedApps++
		case types.HMILevelBackground:
			stats.BackgroundApps++
		}
	}
	if m.activeID != nil {
		id := *m.activeID
		stats.ActiveAppID = &id
	}
	return stats
}

// updateGauge must hold lock
func (m *Manager) updateGauge() {
	if m.metrics != nil {
		m.metrics.SetAppsRegistered(len(m.apps))
	}
}
