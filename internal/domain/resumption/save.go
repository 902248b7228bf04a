package resumption

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// ErrFlushSkipped is returned when the store breaker is open
var ErrFlushSkipped = errors.New("flush skipped, store unavailable")

// LoadResumeData replaces the in-memory index with the stored records.
// Expired records are dropped; when two records claim the same HMI app id
// the newer one keeps it.
func (c *Controller) LoadResumeData(ctx context.Context) error {
	records, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Error("failed to load resumption data", zap.Error(err))
		return fmt.Errorf("failed to load resumption data: %w", err)
	}
	lastIgnOff, err := c.store.GetLastIgnOffTime(ctx)
	if err != nil {
		c.logger.Error("failed to load last ignition-off time", zap.Error(err))
		return fmt.Errorf("failed to load last ignition-off time: %w", err)
	}

	c.mu.Lock()
	c.lastIgnOff = lastIgnOff
	c.mu.Unlock()

	index := make(map[types.RecordKey]*types.Record, len(records))
	dropped := 0
	for _, r := range records {
		if c.IsAppDataResumptionExpired(r) {
			dropped++
			continue
		}
		index[r.Key()] = r
	}
	dropped += dedupeHMIAppIDs(index)

	c.mu.Lock()
	c.records = index
	if dropped > 0 {
		c.markDirty()
	}
	count := len(c.records)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetSavedRecords(count)
	}
	c.logger.Info("resumption data loaded", zap.Int("records", count), zap.Int("dropped", dropped))
	return nil
}

// dedupeHMIAppIDs removes older records sharing an HMI app id
func dedupeHMIAppIDs(index map[types.RecordKey]*types.Record) int {
	owner := make(map[uint32]types.RecordKey, len(index))
	dropped := 0
	for key, r := range index {
		if r.HMIAppID == 0 {
			continue
		}
		prevKey, ok := owner[r.HMIAppID]
		if !ok {
			owner[r.HMIAppID] = key
			continue
		}
		prev := index[prevKey]
		if r.TimeStamp.After(prev.TimeStamp) {
			delete(index, prevKey)
			owner[r.HMIAppID] = key
		} else {
			delete(index, key)
		}
		dropped++
	}
	return dropped
}

// SaveApplication snapshots a live application into its record. Applications
// whose registration is in flight are skipped.
func (c *Controller) SaveApplication(app *types.App) bool {
	if app == nil {
		return false
	}
	key := types.RecordKey{PolicyAppID: app.PolicyAppID, DeviceID: app.DeviceID}
	r := &types.Record{
		PolicyAppID:  app.PolicyAppID,
		DeviceID:     app.DeviceID,
		HMIAppID:     app.HMIAppID,
		AppName:      app.Name,
		IsMedia:      app.IsMedia,
		IsNavigation: app.IsNavigation,
		HMILevel:     app.HMILevel,
		AudioState:   app.AudioState,
		HashID:       app.HashID,
		TimeStamp:    c.now(),
		DeviceMAC:    app.DeviceMAC,
		Content:      app.Content.Clone(),
	}

	c.mu.Lock()
	if c.registering[key] > 0 {
		c.mu.Unlock()
		c.logger.Debug("registration in flight, not saving", zap.String("key", key.String()))
		return false
	}
	for other, existing := range c.records {
		if other != key && r.HMIAppID != 0 && existing.HMIAppID == r.HMIAppID {
			delete(c.records, other)
		}
	}
	c.records[key] = r
	c.markDirty()
	count := len(c.records)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetSavedRecords(count)
	}
	return true
}

// SaveAllApplications snapshots every live application
func (c *Controller) SaveAllApplications() {
	for _, app := range c.registry.List(nil) {
		c.SaveApplication(app)
	}
}

// IsApplicationSaved reports whether a record exists for the application
func (c *Controller) IsApplicationSaved(policyAppID, deviceID string) bool {
	_, ok := c.Record(policyAppID, deviceID)
	return ok
}

// RemoveApplicationFromSaved deletes a record
func (c *Controller) RemoveApplicationFromSaved(policyAppID, deviceID string) bool {
	key := types.RecordKey{PolicyAppID: policyAppID, DeviceID: deviceID}

	c.mu.Lock()
	_, ok := c.records[key]
	if ok {
		delete(c.records, key)
		c.markDirty()
	}
	count := len(c.records)
	c.mu.Unlock()

	if ok && c.metrics != nil {
		c.metrics.SetSavedRecords(count)
	}
	return ok
}

// GetHMIApplicationID returns the saved HMI app id, zero when none is saved
func (c *Controller) GetHMIApplicationID(policyAppID, deviceID string) uint32 {
	r, ok := c.Record(policyAppID, deviceID)
	if !ok {
		return 0
	}
	return r.HMIAppID
}

// IsHMIApplicationIDReserved reports whether the HMI app id is held by the
// saved record of an application other than (policyAppID, deviceID)
func (c *Controller) IsHMIApplicationIDReserved(hmiAppID uint32, policyAppID, deviceID string) bool {
	key := types.RecordKey{PolicyAppID: policyAppID, DeviceID: deviceID}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, r := range c.records {
		if r.HMIAppID == hmiAppID && k != key {
			return true
		}
	}
	return false
}

// IsHMIApplicationIDExist reports whether a saved record holds the HMI app id
func (c *Controller) IsHMIApplicationIDExist(hmiAppID uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.HMIAppID == hmiAppID {
			return true
		}
	}
	return false
}

// SaveDataOnTimer flushes dirty records. The tick is skipped while a
// registration is in flight.
func (c *Controller) SaveDataOnTimer() {
	if c.IsResumptionActive() {
		if c.metrics != nil {
			c.metrics.RecordFlush("skipped")
		}
		return
	}
	if c.IsDataSaved() {
		return
	}
	if err := c.flush(context.Background()); err != nil && !errors.Is(err, ErrFlushSkipped) {
		c.logger.Error("periodic flush failed", zap.Error(err))
	}
}

// Persist flushes the in-memory records now
func (c *Controller) Persist(ctx context.Context) error {
	return c.flush(ctx)
}

// flush writes all records to the store through the breaker
func (c *Controller) flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	gen := c.generation
	records := make([]*types.Record, 0, len(c.records))
	for _, r := range c.records {
		records = append(records, r.Clone())
	}
	c.mu.Unlock()

	save := func() error { return c.store.Save(ctx, records) }
	var err error
	if c.breaker != nil {
		err = c.breaker.Do(save)
	} else {
		err = save()
	}

	if errors.Is(err, resilience.ErrCircuitOpen) {
		if c.metrics != nil {
			c.metrics.RecordFlush("skipped")
		}
		return ErrFlushSkipped
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordFlush("error")
		}
		return fmt.Errorf("failed to save resumption data: %w", err)
	}

	now := c.clock.Now()
	c.mu.Lock()
	if c.generation == gen {
		c.dataSaved = true
	}
	c.lastFlush = &now
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordFlush("ok")
	}
	return nil
}

// StartSavePersistentDataTimer (re)starts the periodic flush
func (c *Controller) StartSavePersistentDataTimer() {
	c.StopSavePersistentDataTimer()
	if c.cfg.PersistenceFlushInterval <= 0 {
		return
	}
	h := c.clock.Every(c.cfg.PersistenceFlushInterval, c.SaveDataOnTimer)

	c.mu.Lock()
	c.flushTimer = h
	c.mu.Unlock()
}

// StopSavePersistentDataTimer stops the periodic flush
func (c *Controller) StopSavePersistentDataTimer() {
	c.mu.Lock()
	h := c.flushTimer
	c.flushTimer = nil
	c.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}
