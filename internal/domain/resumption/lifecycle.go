package resumption

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// OnAppRegistrationStart opens the registration window of an application
func (c *Controller) OnAppRegistrationStart(policyAppID, deviceID string) {
	key := types.RecordKey{PolicyAppID: policyAppID, DeviceID: deviceID}
	c.mu.Lock()
	c.registering[key]++
	c.mu.Unlock()
}

// OnAppRegistrationEnd closes the registration window of an application
func (c *Controller) OnAppRegistrationEnd(policyAppID, deviceID string) {
	key := types.RecordKey{PolicyAppID: policyAppID, DeviceID: deviceID}
	c.mu.Lock()
	if c.registering[key] <= 1 {
		delete(c.registering, key)
	} else {
		c.registering[key]--
	}
	c.mu.Unlock()
}

// IsResumptionActive reports whether any registration is in flight
func (c *Controller) IsResumptionActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.registering) > 0
}

// IsPending reports whether an application waits for its HMI level
func (c *Controller) IsPending(appID uint32) bool {
	return c.queue.contains(appID)
}

// OnApplicationUnregistered saves a disconnecting application, cancels its
// pending restoration and flushes
func (c *Controller) OnApplicationUnregistered(ctx context.Context, app *types.App) {
	if app == nil {
		return
	}
	c.SaveApplication(app)
	c.RemoveFromResumption(app.ID)

	c.mu.Lock()
	delete(c.sessions, app.ID)
	c.mu.Unlock()

	if err := c.flush(ctx); err != nil {
		c.logger.Warn("flush after unregistration failed", zap.Uint32("app_id", app.ID), zap.Error(err))
	}
}

// OnSuspend handles ignition-off: pending restorations are cancelled,
// connected applications are saved and flagged, every record's ignition
// cycle counter is incremented and the ignition-off time is persisted.
func (c *Controller) OnSuspend(ctx context.Context) error {
	c.StopRestoreHmiLevelTimer()

	connected := c.registry.List(nil)
	for _, app := range connected {
		c.SaveApplication(app)
	}

	now := c.now()
	c.mu.Lock()
	for _, app := range connected {
		key := types.RecordKey{PolicyAppID: app.PolicyAppID, DeviceID: app.DeviceID}
		if r, ok := c.records[key]; ok {
			r.DisconnectedBeforeIgnOff = true
		}
	}
	for _, r := range c.records {
		r.IgnitionCycles++
	}
	c.lastIgnOff = now
	c.markDirty()
	c.mu.Unlock()

	c.logger.Info("ignition off", zap.Int("connected_apps", len(connected)))

	var firstErr error
	if err := c.store.SetLastIgnOffTime(ctx, now); err != nil {
		c.logger.Error("failed to persist ignition-off time", zap.Error(err))
		firstErr = err
	}
	if err := c.flush(ctx); err != nil {
		c.logger.Error("flush on suspend failed", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	c.StopSavePersistentDataTimer()
	return firstErr
}

// OnAwake handles ignition-on: the ignition-on window restarts and the
// periodic flush resumes
func (c *Controller) OnAwake() {
	c.ResetLaunchTime()
	c.StartSavePersistentDataTimer()
	c.logger.Info("ignition on")
}
