package resumption

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/domain/hmi"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/timer"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// StartResumption restores a reconnecting application. It applies the
// default HMI level, checks the saved record, replays the saved content when
// hash matches and schedules the HMI level restoration. It reports whether
// content was restored; on a hash mismatch only the HMI level is scheduled.
func (c *Controller) StartResumption(app *types.App, hash string) bool {
	if app == nil {
		return false
	}
	t := monitoring.NewTimer(c.metrics, "resumption", "start_resumption")

	c.SetupDefaultHMILevel(app)

	r, ok := c.Record(app.PolicyAppID, app.DeviceID)
	if !ok {
		t.Stop("no_record")
		return false
	}

	if reason, ok := c.checkEligibility(app, r); !ok {
		c.abort(app, reason)
		t.Stop("aborted")
		return false
	}

	if !c.CheckApplicationHash(app, hash) {
		c.logger.Info("application hash changed, restoring hmi level only",
			zap.Uint32("app_id", app.ID),
			zap.String("policy_app_id", app.PolicyAppID))
		c.startLevelOnly(app)
		t.Stop("hmi_level")
		return false
	}

	c.mu.Lock()
	c.setState(app.ID, types.ResumptionAwaitingHMIData)
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.IncResumptionStarted("full")
	}

	c.RestoreApplicationData(app, r)
	c.AddToResumptionTimerQueue(app.ID)
	t.Stop("ok")
	return true
}

// StartResumptionOnlyHMILevel schedules the HMI level restoration without
// replaying content
func (c *Controller) StartResumptionOnlyHMILevel(app *types.App) bool {
	if app == nil {
		return false
	}
	c.SetupDefaultHMILevel(app)

	r, ok := c.Record(app.PolicyAppID, app.DeviceID)
	if !ok {
		return false
	}
	if reason, ok := c.checkEligibility(app, r); !ok {
		c.abort(app, reason)
		return false
	}
	c.startLevelOnly(app)
	return true
}

func (c *Controller) startLevelOnly(app *types.App) {
	if c.metrics != nil {
		c.metrics.IncResumptionStarted("hmi_level")
	}
	c.AddToResumptionTimerQueue(app.ID)
}

func (c *Controller) abort(app *types.App, reason string) {
	c.logger.Info("resumption denied",
		zap.Uint32("app_id", app.ID),
		zap.String("policy_app_id", app.PolicyAppID),
		zap.String("reason", reason))

	c.mu.Lock()
	c.setState(app.ID, types.ResumptionAborted)
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.IncResumptionOutcome("aborted")
	}
}

// SetupDefaultHMILevel applies the policy default level to a registering application
func (c *Controller) SetupDefaultHMILevel(app *types.App) {
	level := c.policy.DefaultHMILevel(app.PolicyAppID)
	c.SetAppHMIState(app, level, false)
}

// RestoreApplicationData replays saved content as HMI requests. Missing files
// and icons are left out. It reports whether every request was sent.
func (c *Controller) RestoreApplicationData(app *types.App, r *types.Record) bool {
	content := r.Content.Clone()
	c.CheckPersistenceFilesForResumption(app, &content)
	c.registry.RestoreContent(app.ID, content)

	c.mu.Lock()
	if s, ok := c.sessions[app.ID]; ok {
		s.contentRestored = true
	}
	c.mu.Unlock()

	return c.ProcessHMIRequests(app, c.restoreRequests(app, content))
}

// restoreRequests builds the rebuild requests in replay order
func (c *Controller) restoreRequests(app *types.App, content types.Content) []hmi.Request {
	id := app.HMIAppID
	var reqs []hmi.Request

	for _, f := range content.Files {
		reqs = append(reqs, hmi.OnPutFile(id, filepath.Join(c.appFolder(app), f.FileName), f))
	}
	for _, sm := range content.SubMenus {
		reqs = append(reqs, hmi.AddSubMenu(id, sm))
	}
	for _, cmd := range content.Commands {
		if cmd.MenuParams != nil {
			reqs = append(reqs, hmi.UIAddCommand(id, cmd))
		}
		if len(cmd.VRCommands) > 0 {
			reqs = append(reqs, hmi.VRAddCommand(id, cmd))
		}
	}
	for _, cs := range content.ChoiceSets {
		for _, choice := range cs.Choices {
			if len(choice.VRCommands) > 0 {
				reqs = append(reqs, hmi.VRAddChoice(id, cs.GrammarID, choice))
			}
		}
	}
	if gp := content.GlobalProperties; gp != nil {
		if gp.HasUIProperties() {
			reqs = append(reqs, hmi.UISetGlobalProperties(id, *gp))
		}
		if gp.HasTTSProperties() {
			reqs = append(reqs, hmi.TTSSetGlobalProperties(id, *gp))
		}
	}
	for _, button := range content.Subscriptions.Buttons {
		reqs = append(reqs, hmi.OnButtonSubscription(id, button))
	}
	if len(content.Subscriptions.VehicleData) > 0 {
		reqs = append(reqs, hmi.SubscribeVehicleData(id, content.Subscriptions.VehicleData))
	}
	if content.Subscriptions.WayPoints {
		reqs = append(reqs, hmi.SubscribeWayPoints(id))
	}
	return reqs
}

// ProcessHMIRequests sends requests in order, observing the replies of all
// requests that expect one
func (c *Controller) ProcessHMIRequests(app *types.App, reqs []hmi.Request) bool {
	ok := true
	for _, req := range reqs {
		if !c.ProcessHMIRequest(app, req, !req.Notification) {
			ok = false
		}
	}
	return ok
}

// ProcessHMIRequest sends one request. With useEvents the reply is tracked
// against the application's restore sequence.
func (c *Controller) ProcessHMIRequest(app *types.App, req hmi.Request, useEvents bool) bool {
	var observer hmi.Observer
	if useEvents {
		appID := app.ID
		observer = func(ev hmi.Event) { c.onEvent(appID, ev) }

		c.mu.Lock()
		s, ok := c.sessions[appID]
		if !ok {
			s = c.setState(appID, types.ResumptionIdle)
		}
		s.outstanding++
		c.mu.Unlock()
	}

	if _, err := c.channel.Send(req, observer); err != nil {
		c.logger.Error("failed to send hmi request",
			zap.Uint32("app_id", app.ID),
			zap.String("method", req.Method),
			zap.Error(err))
		c.mu.Lock()
		if s, ok := c.sessions[app.ID]; ok {
			if useEvents {
				s.outstanding--
			}
			s.failures++
		}
		c.markDirty()
		c.mu.Unlock()
		return false
	}
	return true
}

// onEvent is the continuation of an observed restore request
func (c *Controller) onEvent(appID uint32, ev hmi.Event) {
	c.mu.Lock()
	s, ok := c.sessions[appID]
	if !ok {
		// Application went away while the request was in flight
		c.mu.Unlock()
		return
	}
	if s.outstanding > 0 {
		s.outstanding--
	}
	failed := !ev.ResultCode.Successful()
	if failed {
		s.failures++
		c.markDirty()
	}
	c.mu.Unlock()

	if failed {
		c.logger.Warn("restore request failed",
			zap.Uint32("app_id", appID),
			zap.String("method", ev.Method),
			zap.String("result", string(ev.ResultCode)))
	}
}

// AddToResumptionTimerQueue schedules the delayed HMI level restoration
func (c *Controller) AddToResumptionTimerQueue(appID uint32) {
	c.mu.Lock()
	c.setState(appID, types.ResumptionAwaitingHMILevel)
	c.mu.Unlock()

	c.InsertToTimerQueue(appID)
	c.updatePendingGauge()
}

// InsertToTimerQueue arms the one-shot restore timer of an application
func (c *Controller) InsertToTimerQueue(appID uint32) {
	at := c.clock.Now().Add(c.cfg.HMILevelRestoreDelay)
	c.queue.schedule(appID, at, c.armRestoreTimer(appID))
}

func (c *Controller) armRestoreTimer(appID uint32) func(seq uint64) timer.Handle {
	return func(seq uint64) timer.Handle {
		return c.clock.AfterFunc(c.cfg.HMILevelRestoreDelay, func() { c.ApplicationResumptionOnTimer(appID, seq) })
	}
}

// ApplicationResumptionOnTimer applies the HMI level of a pending
// application. While any registration is in flight the entry is re-armed,
// unless it was cancelled in the meantime.
func (c *Controller) ApplicationResumptionOnTimer(appID uint32, seq uint64) {
	if c.IsResumptionActive() {
		at := c.clock.Now().Add(c.cfg.HMILevelRestoreDelay)
		c.queue.reschedule(appID, seq, at, c.armRestoreTimer(appID))
		return
	}
	if !c.queue.take(appID, seq) {
		return
	}
	c.updatePendingGauge()

	app, ok := c.registry.Get(appID)
	if !ok {
		c.finish(appID, types.ResumptionAborted)
		return
	}
	c.StartAppHmiStateResumption(app)
}

// StartAppHmiStateResumption applies the final gates and restores the saved
// HMI level. The gates are CheckAppRestrictions and data age; a record saved
// in an earlier ignition cycle must also pass CheckIgnCycleRestrictions,
// which is the only place the ignition-on window applies.
func (c *Controller) StartAppHmiStateResumption(app *types.App) bool {
	r, ok := c.Record(app.PolicyAppID, app.DeviceID)
	if !ok {
		c.finish(app.ID, types.ResumptionAborted)
		return false
	}

	allowed := c.CheckAppRestrictions(app, r) &&
		!c.IsAppDataResumptionExpired(r) &&
		(r.IgnitionCycles == 0 || c.CheckIgnCycleRestrictions(r))

	if allowed && c.RestoreAppHMIState(app, r) {
		c.finish(app.ID, types.ResumptionResumed)
		return true
	}

	c.logger.Info("hmi level not restored",
		zap.Uint32("app_id", app.ID),
		zap.String("saved_level", string(r.HMILevel)))

	c.mu.Lock()
	contentRestored := false
	if s, ok := c.sessions[app.ID]; ok {
		contentRestored = s.contentRestored
	}
	c.mu.Unlock()
	if contentRestored {
		c.finish(app.ID, types.ResumptionResumed)
	} else {
		c.finish(app.ID, types.ResumptionAborted)
	}
	return false
}

// RestoreAppHMIState applies the saved HMI level and audio state
func (c *Controller) RestoreAppHMIState(app *types.App, r *types.Record) bool {
	return c.SetAppHMIState(app, r.HMILevel, true)
}

// SetAppHMIState sets an application's HMI level and the matching audio
// state. An application is never put in FULL over another active
// application; it gets LIMITED or BACKGROUND instead.
func (c *Controller) SetAppHMIState(app *types.App, level types.HMILevel, checkPolicy bool) bool {
	if checkPolicy && !c.policy.IsHMILevelAllowed(app.PolicyAppID, level) {
		c.logger.Info("hmi level not allowed by policy",
			zap.Uint32("app_id", app.ID),
			zap.String("level", string(level)))
		return false
	}

	if level == types.HMILevelFull {
		if active, ok := c.registry.ActiveApp(); ok && active.ID != app.ID {
			if app.IsAudioApp() {
				level = types.HMILevelLimited
			} else {
				level = types.HMILevelBackground
			}
		}
	}

	if !c.registry.SetHMILevel(app.ID, level) {
		return false
	}
	c.registry.SetAudioStreamingState(app.ID, audioStateFor(app, level))

	switch {
	case level == types.HMILevelFull:
		c.ProcessHMIRequest(app, hmi.ActivateApp(app.HMIAppID, level), true)
	case level == types.HMILevelLimited && app.IsMedia:
		c.ProcessHMIRequest(app, hmi.OnResumeAudioSource(app.HMIAppID), false)
	}
	return true
}

func audioStateFor(app *types.App, level types.HMILevel) types.AudioStreamingState {
	if app.IsAudioApp() && (level == types.HMILevelFull || level == types.HMILevelLimited) {
		return types.AudioAudible
	}
	return types.AudioNotAudible
}

// OnAppActivated cancels the pending HMI level restoration of an application
// the user activated
func (c *Controller) OnAppActivated(app *types.App) bool {
	if app == nil {
		return false
	}
	return c.RemoveFromResumption(app.ID)
}

// RemoveFromResumption cancels the pending HMI level restoration. Requests
// already sent are left to complete.
func (c *Controller) RemoveFromResumption(appID uint32) bool {
	if !c.queue.remove(appID) {
		return false
	}
	c.updatePendingGauge()

	c.mu.Lock()
	if s, ok := c.sessions[appID]; ok {
		s.state = types.ResumptionAborted
	}
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.IncResumptionOutcome("cancelled")
	}
	return true
}

// StopRestoreHmiLevelTimer cancels every pending HMI level restoration
func (c *Controller) StopRestoreHmiLevelTimer() {
	ids := c.queue.clear()
	if len(ids) == 0 {
		return
	}
	c.updatePendingGauge()

	c.mu.Lock()
	for _, id := range ids {
		if s, ok := c.sessions[id]; ok {
			s.state = types.ResumptionAborted
		}
	}
	c.mu.Unlock()
	if c.metrics != nil {
		for range ids {
			c.metrics.IncResumptionOutcome("cancelled")
		}
	}
}
