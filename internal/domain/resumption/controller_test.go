package resumption

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/domain/app"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/domain/hmi"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/timer"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/persistence"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
	"github.com/GriffinCanCode/HeadUnit/backend/tests/helpers/testutil"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	clock    *timer.Manual
	store    Store
	registry *app.Manager
	channel  *testutil.RecordingChannel
	policy   Policy
	ctrl     *Controller
	cfg      Config
}

type option func(*fixture)

func withStore(s Store) option           { return func(f *fixture) { f.store = s } }
func withPolicy(p Policy) option         { return func(f *fixture) { f.policy = p } }
func withConfig(fn func(*Config)) option { return func(f *fixture) { fn(&f.cfg) } }

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		clock:    timer.NewManual(start),
		store:    persistence.NewMemoryStore(),
		registry: app.NewManager(zap.NewNop()),
		channel:  testutil.NewRecordingChannel(),
		policy:   testutil.NewMockPolicy(t),
		cfg: Config{
			IgnitionCycleLimit:       3,
			DataAgeLimit:             48 * time.Hour,
			DelayAfterIgnOnLimit:     30 * time.Second,
			DelayBeforeIgnOff:        30 * time.Second,
			HMILevelRestoreDelay:     3 * time.Second,
			PersistenceFlushInterval: 10 * time.Second,
			AppStorageFolder:         t.TempDir(),
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.ctrl = New(f.cfg, f.store, f.registry, f.channel, f.policy, zap.NewNop()).WithClock(f.clock)
	f.registry.WithReservedHMIAppIDs(f.ctrl.IsHMIApplicationIDReserved)
	return f
}

func (f *fixture) init() {
	f.t.Helper()
	require.NoError(f.t, f.ctrl.Init(f.ctx))
}

// connect registers an application the way the registration handler does
func (f *fixture) connect(policyAppID string, media bool, hash string) *types.App {
	f.t.Helper()
	f.ctrl.OnAppRegistrationStart(policyAppID, "d1")
	defer f.ctrl.OnAppRegistrationEnd(policyAppID, "d1")

	a, err := f.registry.Register(app.RegisterRequest{
		PolicyAppID: policyAppID,
		DeviceID:    "d1",
		DeviceMAC:   "aa:bb:cc:dd:ee:ff",
		IsMedia:     media,
		HashID:      hash,
		HMIAppID:    f.ctrl.GetHMIApplicationID(policyAppID, "d1"),
	})
	require.NoError(f.t, err)
	return a
}

// disconnect unregisters an application the way the lifecycle handler does
func (f *fixture) disconnect(id uint32) {
	f.t.Helper()
	a, ok := f.registry.Unregister(id)
	require.True(f.t, ok)
	f.ctrl.OnApplicationUnregistered(f.ctx, a)
}

func (f *fixture) live(id uint32) *types.App {
	f.t.Helper()
	a, ok := f.registry.Get(id)
	require.True(f.t, ok)
	return a
}

func (f *fixture) writeAppFile(policyAppID, name string, data []byte) {
	f.t.Helper()
	dir := filepath.Join(f.cfg.AppStorageFolder, policyAppID+"_d1")
	require.NoError(f.t, os.MkdirAll(dir, 0o755))
	require.NoError(f.t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func (f *fixture) seed(records ...*types.Record) {
	f.t.Helper()
	require.NoError(f.t, f.store.Save(f.ctx, records))
}

func fullContent() types.Content {
	position := uint32(1)
	return types.Content{
		Files:    []types.AppFile{{FileName: "icon.png", FileType: "GRAPHIC_PNG", IsPersistent: true, IsDownloadComplete: true}},
		SubMenus: []types.SubMenu{{MenuID: 10, MenuName: "Stations", Position: &position}},
		Commands: []types.Command{{
			CmdID:      1,
			MenuParams: &types.MenuParams{ParentID: 10, MenuName: "Play"},
			VRCommands: []string{"play"},
			CmdIcon:    &types.Image{Value: "icon.png", ImageType: types.ImageDynamic},
		}},
		ChoiceSets: []types.ChoiceSet{{
			ChoiceSetID: 5,
			GrammarID:   77,
			Choices:     []types.Choice{{ChoiceID: 1, MenuName: "Jazz", VRCommands: []string{"jazz"}}},
		}},
		GlobalProperties: &types.GlobalProperties{
			HelpPrompt:  []types.TTSChunk{{Text: "help", Type: "TEXT"}},
			VRHelpTitle: "Radio",
		},
		Subscriptions: types.Subscriptions{
			Buttons:     []string{"OK"},
			VehicleData: []string{"speed"},
			WayPoints:   true,
		},
	}
}

var contentMethods = []string{
	hmi.MethodOnPutFile,
	hmi.MethodUIAddSubMenu,
	hmi.MethodUIAddCommand,
	hmi.MethodVRAddCommand,
	hmi.MethodVRAddCommand,
	hmi.MethodUISetGlobalProperties,
	hmi.MethodTTSSetGlobalProperties,
	hmi.MethodOnButtonSubscription,
	hmi.MethodSubscribeVehicleData,
	hmi.MethodSubscribeWayPoints,
}

// saveFullApp runs the first session of app p1: registered, content set, FULL, then disconnected
func (f *fixture) saveFullApp() {
	f.t.Helper()
	f.writeAppFile("p1", "icon.png", pngHeader)

	a := f.connect("p1", true, "h1")
	f.registry.UpdateContent(a.ID, fullContent())
	f.registry.SetHMILevel(a.ID, types.HMILevelFull)
	f.registry.SetAudioStreamingState(a.ID, types.AudioAudible)
	f.disconnect(a.ID)

	require.True(f.t, f.ctrl.IsApplicationSaved("p1", "d1"))
	f.channel.Reset()
}

func TestResumeAfterReconnect(t *testing.T) {
	t.Run("matching hash restores content then level", func(t *testing.T) {
		f := newFixture(t)
		f.init()
		f.saveFullApp()

		f.ctrl.OnAppRegistrationStart("p1", "d1")
		a, err := f.registry.Register(app.RegisterRequest{
			PolicyAppID: "p1", DeviceID: "d1", IsMedia: true, HashID: "h1",
			HMIAppID: f.ctrl.GetHMIApplicationID("p1", "d1"),
		})
		require.NoError(t, err)
		assert.True(t, f.ctrl.StartResumption(a, "h1"))
		f.ctrl.OnAppRegistrationEnd("p1", "d1")

		assert.Equal(t, contentMethods, f.channel.Methods())
		assert.Equal(t, types.ResumptionAwaitingHMILevel, f.ctrl.State(a.ID))
		assert.True(t, f.ctrl.IsPending(a.ID))
		assert.Equal(t, types.HMILevelNone, f.live(a.ID).HMILevel)

		f.clock.Advance(2 * time.Second)
		assert.Equal(t, types.HMILevelNone, f.live(a.ID).HMILevel, "level waits for the restore delay")

		f.clock.Advance(time.Second)
		restored := f.live(a.ID)
		assert.Equal(t, types.HMILevelFull, restored.HMILevel)
		assert.Equal(t, types.AudioAudible, restored.AudioState)
		assert.Equal(t, types.ResumptionResumed, f.ctrl.State(a.ID))
		assert.False(t, f.ctrl.IsPending(a.ID))

		methods := f.channel.Methods()
		assert.Equal(t, hmi.MethodActivateApp, methods[len(methods)-1])

		// Restored content is visible on the live application
		assert.Len(t, restored.Content.Commands, 1)
		assert.True(t, restored.Content.Subscriptions.WayPoints)
	})

	t.Run("changed hash restores level only", func(t *testing.T) {
		f := newFixture(t)
		f.init()
		f.saveFullApp()

		a := f.connect("p1", true, "h2")
		assert.False(t, f.ctrl.StartResumption(a, "h2"))
		assert.Empty(t, f.channel.Methods(), "no content rebuild requests")
		assert.True(t, f.ctrl.IsPending(a.ID))

		f.clock.Advance(3 * time.Second)
		assert.Equal(t, types.HMILevelFull, f.live(a.ID).HMILevel)
		assert.Equal(t, []string{hmi.MethodActivateApp}, f.channel.Methods())
		assert.Empty(t, f.live(a.ID).Content.Commands)
	})
}

func TestStartResumptionWithoutRecord(t *testing.T) {
	f := newFixture(t)
	f.init()

	a := f.connect("p1", false, "h1")
	assert.False(t, f.ctrl.StartResumption(a, "h1"))
	assert.False(t, f.ctrl.StartResumption(nil, "h1"))
	assert.False(t, f.ctrl.StartResumptionOnlyHMILevel(a))
	assert.Empty(t, f.ctrl.Pending())
	assert.Equal(t, types.ResumptionIdle, f.ctrl.State(a.ID))
}

func TestFlushTimerDisabled(t *testing.T) {
	f := newFixture(t, withConfig(func(cfg *Config) { cfg.PersistenceFlushInterval = 0 }))
	f.init()
	assert.Zero(t, f.clock.Pending())

	f.ctrl.SaveApplication(testutil.CreateTestApp(t, 1, "p1", "d1"))
	f.clock.Advance(time.Minute)
	assert.False(t, f.ctrl.IsDataSaved())
}

func TestStartResumptionOnlyHMILevel(t *testing.T) {
	f := newFixture(t)
	f.init()
	f.saveFullApp()

	a := f.connect("p1", true, "h1")
	assert.True(t, f.ctrl.StartResumptionOnlyHMILevel(a))
	assert.Empty(t, f.channel.Methods())

	f.clock.Advance(3 * time.Second)
	assert.Equal(t, types.HMILevelFull, f.live(a.ID).HMILevel)
}

func TestIgnitionCycleRestrictions(t *testing.T) {
	tests := []struct {
		name        string
		cycles      int
		flagged     bool
		savedBefore time.Duration // saved this long before the last ignition-off
		expectStart bool
		expectLevel types.HMILevel
		expectState types.ResumptionState
	}{
		{
			name: "within limit, connected at ignition-off", cycles: 1, flagged: true, savedBefore: time.Hour,
			expectStart: true, expectLevel: types.HMILevelFull, expectState: types.ResumptionResumed,
		},
		{
			name: "within limit, disconnected long before ignition-off", cycles: 3, savedBefore: time.Hour,
			expectStart: true, expectLevel: types.HMILevelNone, expectState: types.ResumptionResumed,
		},
		{
			name: "over limit", cycles: 4, savedBefore: time.Hour,
			expectStart: false, expectLevel: types.HMILevelNone, expectState: types.ResumptionAborted,
		},
		{
			name: "over limit but flagged at ignition-off", cycles: 4, flagged: true, savedBefore: time.Hour,
			expectStart: true, expectLevel: types.HMILevelFull, expectState: types.ResumptionResumed,
		},
		{
			name: "over limit but saved just before ignition-off", cycles: 4, savedBefore: 20 * time.Second,
			expectStart: true, expectLevel: types.HMILevelFull, expectState: types.ResumptionResumed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ignOff := start.Add(-10 * time.Minute)
			r := testutil.CreateTestRecord(t, "p1", "d1", 500, ignOff.Add(-tt.savedBefore))
			r.IgnitionCycles = tt.cycles
			r.DisconnectedBeforeIgnOff = tt.flagged
			f.seed(r)
			require.NoError(t, f.store.SetLastIgnOffTime(f.ctx, ignOff))
			f.init()

			a := f.connect("p1", false, "h1")
			assert.Equal(t, tt.expectStart, f.ctrl.StartResumption(a, "h1"))

			f.clock.Advance(3 * time.Second)
			assert.Equal(t, tt.expectLevel, f.live(a.ID).HMILevel)
			assert.Equal(t, tt.expectState, f.ctrl.State(a.ID))
			if !tt.expectStart {
				assert.Empty(t, f.channel.Methods())
			}
		})
	}
}

func TestLevelNotRestoredOutsideIgnitionOnWindow(t *testing.T) {
	f := newFixture(t)
	r := testutil.CreateTestRecord(t, "p1", "d1", 500, start.Add(-time.Hour))
	r.IgnitionCycles = 1
	r.DisconnectedBeforeIgnOff = true
	f.seed(r)
	f.init()

	// Long after ignition-on the reconnect is not an ignition resume
	f.clock.Advance(time.Minute)

	a := f.connect("p1", false, "h1")
	assert.True(t, f.ctrl.StartResumption(a, "h1"))
	f.clock.Advance(3 * time.Second)

	assert.Equal(t, types.HMILevelNone, f.live(a.ID).HMILevel)
}

func TestSameCycleReconnectIgnoresIgnitionOnWindow(t *testing.T) {
	f := newFixture(t)
	f.seed(testutil.CreateTestRecord(t, "p1", "d1", 500, start.Add(-time.Hour)))
	f.init()

	f.clock.Advance(time.Minute)
	require.False(t, f.ctrl.CheckDelayAfterIgnOn())

	a := f.connect("p1", false, "h1")
	assert.True(t, f.ctrl.StartResumption(a, "h1"))
	f.clock.Advance(3 * time.Second)

	assert.Equal(t, types.HMILevelFull, f.live(a.ID).HMILevel)
	assert.Equal(t, types.ResumptionResumed, f.ctrl.State(a.ID))
}

func TestDataAgeLimit(t *testing.T) {
	t.Run("expired records are dropped on load", func(t *testing.T) {
		f := newFixture(t)
		f.seed(
			testutil.CreateTestRecord(t, "old", "d1", 1, start.Add(-49*time.Hour)),
			testutil.CreateTestRecord(t, "new", "d1", 2, start.Add(-time.Hour)),
		)
		f.init()

		assert.False(t, f.ctrl.IsApplicationSaved("old", "d1"))
		assert.True(t, f.ctrl.IsApplicationSaved("new", "d1"))
		assert.False(t, f.ctrl.IsDataSaved())
	})

	t.Run("age beats ignition cycle waiver", func(t *testing.T) {
		f := newFixture(t)
		r := testutil.CreateTestRecord(t, "p1", "d1", 1, start.Add(-47*time.Hour))
		r.DisconnectedBeforeIgnOff = true
		f.seed(r)
		f.init()

		f.clock.Advance(2 * time.Hour)

		a := f.connect("p1", false, "h1")
		assert.False(t, f.ctrl.StartResumption(a, "h1"))
		assert.Equal(t, types.ResumptionAborted, f.ctrl.State(a.ID))
		assert.Empty(t, f.ctrl.Pending())
	})
}

func TestPolicyAndDeviceGates(t *testing.T) {
	t.Run("policy denial", func(t *testing.T) {
		policy := new(testutil.MockPolicy)
		policy.On("IsAppAllowed", "p1").Return(false)
		policy.On("DefaultHMILevel", mock.Anything).Return(types.HMILevelNone)
		policy.On("IsHMILevelAllowed", mock.Anything, mock.Anything).Return(true).Maybe()

		f := newFixture(t, withPolicy(policy))
		f.seed(testutil.CreateTestRecord(t, "p1", "d1", 1, start.Add(-time.Hour)))
		f.init()

		a := f.connect("p1", false, "h1")
		assert.False(t, f.ctrl.StartResumption(a, "h1"))
		assert.Equal(t, types.ResumptionAborted, f.ctrl.State(a.ID))
		policy.AssertExpectations(t)
	})

	t.Run("level not allowed at timer", func(t *testing.T) {
		policy := new(testutil.MockPolicy)
		policy.On("IsAppAllowed", mock.Anything).Return(true)
		policy.On("DefaultHMILevel", mock.Anything).Return(types.HMILevelNone)
		policy.On("IsHMILevelAllowed", mock.Anything, types.HMILevelFull).Return(false)
		policy.On("IsHMILevelAllowed", mock.Anything, mock.Anything).Return(true)

		f := newFixture(t, withPolicy(policy))
		f.seed(testutil.CreateTestRecord(t, "p1", "d1", 1, start.Add(-time.Hour)))
		f.init()

		a := f.connect("p1", false, "h2")
		f.ctrl.StartResumption(a, "h2")
		f.clock.Advance(3 * time.Second)

		assert.Equal(t, types.HMILevelNone, f.live(a.ID).HMILevel)
		assert.Equal(t, types.ResumptionAborted, f.ctrl.State(a.ID))
	})

	t.Run("different handset", func(t *testing.T) {
		f := newFixture(t)
		r := testutil.CreateTestRecord(t, "p1", "d1", 1, start.Add(-time.Hour))
		r.DeviceMAC = "11:22:33:44:55:66"
		f.seed(r)
		f.init()

		a := f.connect("p1", false, "h1")
		assert.False(t, f.ctrl.StartResumption(a, "h1"))
	})
}

func TestCancelPendingResumption(t *testing.T) {
	tests := []struct {
		name   string
		cancel func(f *fixture, a *types.App)
	}{
		{
			name:   "user activation",
			cancel: func(f *fixture, a *types.App) { assert.True(t, f.ctrl.OnAppActivated(a)) },
		},
		{
			name:   "disconnect",
			cancel: func(f *fixture, a *types.App) { f.disconnect(a.ID) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.init()
			f.saveFullApp()

			a := f.connect("p1", true, "h1")
			require.True(t, f.ctrl.StartResumption(a, "h1"))
			f.clock.Advance(time.Second)

			tt.cancel(f, a)
			assert.False(t, f.ctrl.IsPending(a.ID))
			assert.Empty(t, f.ctrl.Pending())

			f.clock.Advance(10 * time.Second)
			assert.Zero(t, f.channel.Count(hmi.MethodActivateApp), "hmi level is never applied")
			if live, ok := f.registry.Get(a.ID); ok {
				assert.Equal(t, types.HMILevelNone, live.HMILevel)
			}
		})
	}
}

func TestRestoredLevelDoesNotStealFocus(t *testing.T) {
	f := newFixture(t)
	f.init()
	f.saveFullApp()

	other := f.connect("other", false, "")
	f.registry.SetHMILevel(other.ID, types.HMILevelFull)

	a := f.connect("p1", true, "h1")
	f.ctrl.StartResumption(a, "h1")
	f.clock.Advance(3 * time.Second)

	assert.Equal(t, types.HMILevelLimited, f.live(a.ID).HMILevel)
	assert.Equal(t, types.AudioAudible, f.live(a.ID).AudioState)
	assert.Equal(t, types.HMILevelFull, f.live(other.ID).HMILevel)
	assert.Equal(t, 1, f.channel.Count(hmi.MethodOnResumeAudioSource))
	assert.Zero(t, f.channel.Count(hmi.MethodActivateApp))
}

func TestSuspendAndAwake(t *testing.T) {
	f := newFixture(t)
	first := testutil.CreateTestRecord(t, "p1", "d1", 1, start.Add(-time.Hour))
	second := testutil.CreateTestRecord(t, "p2", "d1", 2, start.Add(-time.Hour))
	second.IgnitionCycles = 2
	f.seed(first, second)
	f.init()

	connected := f.connect("p3", false, "h3")
	pending := f.connect("p1", false, "h1")
	require.True(t, f.ctrl.StartResumption(pending, "h1"))

	require.NoError(t, f.ctrl.OnSuspend(f.ctx))
	assert.Empty(t, f.ctrl.Pending(), "suspend cancels pending restorations")

	f.clock.Advance(time.Hour)
	f.ctrl.OnAwake()

	stored, err := f.store.Load(f.ctx)
	require.NoError(t, err)
	cycles := map[string]int{}
	for _, r := range stored {
		cycles[r.PolicyAppID] = r.IgnitionCycles
	}
	assert.Equal(t, map[string]int{"p1": 1, "p2": 3, "p3": 1}, cycles)

	saved, ok := f.ctrl.Record("p3", "d1")
	require.True(t, ok)
	assert.True(t, saved.DisconnectedBeforeIgnOff, "connected apps are flagged at ignition-off")
	assert.Equal(t, connected.HMIAppID, saved.HMIAppID)

	ignOff, err := f.store.GetLastIgnOffTime(f.ctx)
	require.NoError(t, err)
	assert.True(t, ignOff.Equal(start))
	assert.Equal(t, start.Add(time.Hour), f.ctrl.LaunchTime())
	assert.True(t, f.ctrl.IsDataSaved())
}

func TestRegistrationWindow(t *testing.T) {
	t.Run("restore timer waits for registrations", func(t *testing.T) {
		f := newFixture(t)
		f.init()
		f.saveFullApp()

		a := f.connect("p1", true, "h1")
		f.ctrl.StartResumption(a, "h1")

		f.ctrl.OnAppRegistrationStart("p9", "d1")
		assert.True(t, f.ctrl.IsResumptionActive())
		f.clock.Advance(4 * time.Second)
		assert.Equal(t, types.HMILevelNone, f.live(a.ID).HMILevel)
		assert.True(t, f.ctrl.IsPending(a.ID))

		f.ctrl.OnAppRegistrationEnd("p9", "d1")
		assert.False(t, f.ctrl.IsResumptionActive())
		f.clock.Advance(3 * time.Second)
		assert.Equal(t, types.HMILevelFull, f.live(a.ID).HMILevel)
	})

	t.Run("activation while re-armed cancels for good", func(t *testing.T) {
		f := newFixture(t)
		f.init()
		f.saveFullApp()

		a := f.connect("p1", true, "h1")
		f.ctrl.StartResumption(a, "h1")

		f.ctrl.OnAppRegistrationStart("p9", "d1")
		f.clock.Advance(4 * time.Second)
		require.True(t, f.ctrl.IsPending(a.ID))

		assert.True(t, f.ctrl.OnAppActivated(f.live(a.ID)))
		f.clock.Advance(4 * time.Second)
		assert.False(t, f.ctrl.IsPending(a.ID))

		f.ctrl.OnAppRegistrationEnd("p9", "d1")
		f.clock.Advance(10 * time.Second)
		assert.False(t, f.ctrl.IsPending(a.ID))
		assert.Equal(t, types.HMILevelNone, f.live(a.ID).HMILevel)
		assert.Equal(t, types.ResumptionAborted, f.ctrl.State(a.ID))
		assert.Zero(t, f.channel.Count("BasicCommunication.ActivateApp"))
	})

	t.Run("saves skip applications mid-registration", func(t *testing.T) {
		f := newFixture(t)
		f.init()

		a := testutil.CreateTestApp(t, 1, "p1", "d1")
		f.ctrl.OnAppRegistrationStart("p1", "d1")
		assert.False(t, f.ctrl.SaveApplication(a))
		f.ctrl.OnAppRegistrationEnd("p1", "d1")
		assert.True(t, f.ctrl.SaveApplication(a))
	})

	t.Run("periodic flush skipped while registering", func(t *testing.T) {
		f := newFixture(t)
		f.init()
		f.ctrl.SaveApplication(testutil.CreateTestApp(t, 1, "p1", "d1"))

		f.ctrl.OnAppRegistrationStart("p2", "d1")
		f.clock.Advance(10 * time.Second)
		assert.False(t, f.ctrl.IsDataSaved())

		f.ctrl.OnAppRegistrationEnd("p2", "d1")
		f.clock.Advance(10 * time.Second)
		assert.True(t, f.ctrl.IsDataSaved())
	})
}

func TestSavePath(t *testing.T) {
	f := newFixture(t)
	f.init()
	assert.True(t, f.ctrl.IsDataSaved())

	a := testutil.CreateTestApp(t, 1, "p1", "d1")
	a.HashID = "h1"
	a.HMILevel = types.HMILevelLimited
	require.True(t, f.ctrl.SaveApplication(a))
	assert.False(t, f.ctrl.IsDataSaved())

	saved, ok := f.ctrl.Record("p1", "d1")
	require.True(t, ok)
	assert.Equal(t, start, saved.TimeStamp)
	assert.Equal(t, types.HMILevelLimited, saved.HMILevel)
	assert.Zero(t, saved.IgnitionCycles)

	f.clock.Advance(10 * time.Second)
	assert.True(t, f.ctrl.IsDataSaved())
	stored, err := f.store.Load(f.ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "h1", stored[0].HashID)

	// Last write wins per key
	a.HashID = "h2"
	f.ctrl.SaveApplication(a)
	assert.Len(t, f.ctrl.Records(), 1)
	assert.Equal(t, "h2", f.ctrl.Records()[0].HashID)

	assert.True(t, f.ctrl.RemoveApplicationFromSaved("p1", "d1"))
	assert.False(t, f.ctrl.IsApplicationSaved("p1", "d1"))
	assert.False(t, f.ctrl.RemoveApplicationFromSaved("p1", "d1"))
}

func TestSaveAllApplications(t *testing.T) {
	f := newFixture(t)
	f.init()
	f.connect("p1", false, "h1")
	f.connect("p2", false, "h2")

	f.ctrl.SaveAllApplications()
	assert.Len(t, f.ctrl.Records(), 2)
}

func TestHMIAppIDUniqueness(t *testing.T) {
	f := newFixture(t)
	f.init()

	first := testutil.CreateTestApp(t, 1, "p1", "d1")
	second := testutil.CreateTestApp(t, 2, "p2", "d1")
	second.HMIAppID = first.HMIAppID

	f.ctrl.SaveApplication(first)
	f.ctrl.SaveApplication(second)

	assert.False(t, f.ctrl.IsApplicationSaved("p1", "d1"))
	assert.True(t, f.ctrl.IsApplicationSaved("p2", "d1"))
	assert.True(t, f.ctrl.IsHMIApplicationIDExist(first.HMIAppID))
	assert.Equal(t, first.HMIAppID, f.ctrl.GetHMIApplicationID("p2", "d1"))
	assert.Zero(t, f.ctrl.GetHMIApplicationID("p1", "d1"))
}

func TestReconnectReusesHMIAppID(t *testing.T) {
	f := newFixture(t)
	f.init()

	a := f.connect("p1", false, "h1")
	f.disconnect(a.ID)

	// A fresh app must not take the id held by the saved record
	other := f.connect("p2", false, "")
	assert.NotEqual(t, a.HMIAppID, other.HMIAppID)

	again := f.connect("p1", false, "h1")
	assert.Equal(t, a.HMIAppID, again.HMIAppID)
}

func TestRequestedHMIAppIDOfAnotherRecord(t *testing.T) {
	f := newFixture(t)
	f.init()

	first := f.connect("p1", false, "h1")
	f.disconnect(first.ID)

	intruder, err := f.registry.Register(app.RegisterRequest{PolicyAppID: "p2", DeviceID: "d1", HMIAppID: first.HMIAppID})
	require.NoError(t, err)
	assert.NotEqual(t, first.HMIAppID, intruder.HMIAppID)
	assert.False(t, f.ctrl.IsHMIApplicationIDReserved(first.HMIAppID, "p1", "d1"))
	assert.True(t, f.ctrl.IsHMIApplicationIDReserved(first.HMIAppID, "p2", "d1"))

	f.disconnect(intruder.ID)
	assert.True(t, f.ctrl.IsApplicationSaved("p1", "d1"), "saving another app keeps the record")
	assert.True(t, f.ctrl.IsApplicationSaved("p2", "d1"))

	again := f.connect("p1", false, "h1")
	assert.Equal(t, first.HMIAppID, again.HMIAppID)
}

func TestStorageUnavailable(t *testing.T) {
	t.Run("init fails but controller keeps working", func(t *testing.T) {
		store := new(testutil.MockStore)
		store.On("Load", mock.Anything).Return(nil, errors.New("disk gone"))
		store.On("Save", mock.Anything, mock.Anything).Return(nil).Maybe()

		f := newFixture(t, withStore(store))
		assert.Error(t, f.ctrl.Init(f.ctx))
		assert.Empty(t, f.ctrl.Records())

		assert.True(t, f.ctrl.SaveApplication(testutil.CreateTestApp(t, 1, "p1", "d1")))
		assert.NoError(t, f.ctrl.Persist(f.ctx))
	})

	t.Run("breaker skips flushes and keeps data dirty", func(t *testing.T) {
		store := new(testutil.MockStore)
		store.On("Load", mock.Anything).Return([]*types.Record(nil), nil)
		store.On("GetLastIgnOffTime", mock.Anything).Return(time.Time{}, nil)
		store.On("Save", mock.Anything, mock.Anything).Return(errors.New("read-only file system")).Once()

		f := newFixture(t, withStore(store))
		f.ctrl.WithBreaker(resilience.New("store", resilience.Settings{
			FailureThreshold: 1,
			Cooldown:         time.Minute,
			Now:              f.clock.Now,
		}))
		f.init()
		f.ctrl.SaveApplication(testutil.CreateTestApp(t, 1, "p1", "d1"))

		assert.Error(t, f.ctrl.Persist(f.ctx))
		assert.ErrorIs(t, f.ctrl.Persist(f.ctx), ErrFlushSkipped)
		assert.False(t, f.ctrl.IsDataSaved())
		store.AssertNumberOfCalls(t, "Save", 1)
	})
}

// gatedStore blocks its first Save until released
type gatedStore struct {
	*persistence.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemoryStore: persistence.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *gatedStore) Save(ctx context.Context, records []*types.Record) error {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.MemoryStore.Save(ctx, records)
}

func TestConcurrentFlushesKeepNewestRecords(t *testing.T) {
	store := newGatedStore()
	f := newFixture(t, withStore(store))
	f.init()

	require.True(t, f.ctrl.SaveApplication(testutil.CreateTestApp(t, 1, "p1", "d1")))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, f.ctrl.Persist(f.ctx))
	}()
	<-store.entered

	require.True(t, f.ctrl.SaveApplication(testutil.CreateTestApp(t, 2, "p2", "d1")))
	go func() {
		defer wg.Done()
		assert.NoError(t, f.ctrl.Persist(f.ctx))
	}()

	close(store.release)
	wg.Wait()

	records, err := store.Load(f.ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.True(t, f.ctrl.IsDataSaved())
}

func TestRestoreRequestReplies(t *testing.T) {
	f := newFixture(t)
	f.init()
	f.saveFullApp()

	a := f.connect("p1", true, "h1")
	require.True(t, f.ctrl.StartResumption(a, "h1"))
	observed := f.ctrl.Outstanding(a.ID)
	assert.Equal(t, 8, observed, "notifications are not observed")

	f.clock.Advance(10 * time.Second)
	require.True(t, f.ctrl.IsDataSaved())

	f.channel.ReplyAll(hmi.ResultRejected)
	assert.Zero(t, f.ctrl.Outstanding(a.ID))
	assert.False(t, f.ctrl.IsDataSaved(), "failed replies mark data dirty")

	// Replies arriving after the application left are ignored
	f.disconnect(a.ID)
	assert.NotPanics(t, func() { f.channel.ReplyAll(hmi.ResultSuccess) })
	assert.Zero(t, f.ctrl.Outstanding(a.ID))
}

func TestSendFailureDoesNotStopSequence(t *testing.T) {
	f := newFixture(t)
	f.init()
	f.saveFullApp()

	f.channel.FailWith(hmi.ErrNotConnected)
	a := f.connect("p1", true, "h1")
	assert.True(t, f.ctrl.StartResumption(a, "h1"))
	assert.True(t, f.ctrl.IsPending(a.ID))
	assert.Zero(t, f.ctrl.Outstanding(a.ID))

	f.channel.FailWith(nil)
	f.clock.Advance(3 * time.Second)
	assert.Equal(t, types.HMILevelFull, f.live(a.ID).HMILevel)
}

func TestShutdownFlushes(t *testing.T) {
	f := newFixture(t)
	f.init()
	f.ctrl.SaveApplication(testutil.CreateTestApp(t, 1, "p1", "d1"))

	require.NoError(t, f.ctrl.Shutdown(f.ctx))
	assert.True(t, f.ctrl.IsDataSaved())
	assert.Zero(t, f.clock.Pending())

	stored, err := f.store.Load(f.ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.init()
	f.saveFullApp()

	a := f.connect("p1", true, "h1")
	f.ctrl.StartResumption(a, "h1")

	stats := f.ctrl.Stats()
	assert.Equal(t, 1, stats.SavedRecords)
	assert.Equal(t, 1, stats.Pending)
	assert.False(t, stats.ResumptionActive)
	require.NotNil(t, stats.LastFlush)
	assert.Nil(t, stats.LastIgnOff)
}
