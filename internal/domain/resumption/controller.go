package resumption

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/domain/hmi"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/timer"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// Store is the durable record store
type Store interface {
	Load(ctx context.Context) ([]*types.Record, error)
	Save(ctx context.Context, records []*types.Record) error
	GetLastIgnOffTime(ctx context.Context) (time.Time, error)
	SetLastIgnOffTime(ctx context.Context, t time.Time) error
}

// Registry is the application registry surface used by the controller
type Registry interface {
	Get(id uint32) (*types.App, bool)
	FindByPolicyAndDevice(policyAppID, deviceID string) (*types.App, bool)
	List(level *types.HMILevel) []*types.App
	ActiveApp() (*types.App, bool)
	SetHMILevel(id uint32, level types.HMILevel) bool
	SetAudioStreamingState(id uint32, state types.AudioStreamingState) bool
	RestoreContent(id uint32, content types.Content) bool
}

// Channel sends requests to the head unit
type Channel interface {
	Send(req hmi.Request, observer hmi.Observer) (uint32, error)
}

// Policy answers permission questions
type Policy interface {
	IsAppAllowed(policyAppID string) bool
	DefaultHMILevel(policyAppID string) types.HMILevel
	IsHMILevelAllowed(policyAppID string, level types.HMILevel) bool
}

// Config holds eligibility limits and timer periods
type Config struct {
	IgnitionCycleLimit       int
	DataAgeLimit             time.Duration
	DelayAfterIgnOnLimit     time.Duration
	DelayBeforeIgnOff        time.Duration
	HMILevelRestoreDelay     time.Duration
	PersistenceFlushInterval time.Duration
	AppStorageFolder         string
}

// ConfigFrom extracts the controller configuration
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		IgnitionCycleLimit:       cfg.Resumption.IgnitionCycleLimit,
		DataAgeLimit:             cfg.Resumption.DataAgeLimit,
		DelayAfterIgnOnLimit:     cfg.Resumption.DelayAfterIgnOnLimit,
		DelayBeforeIgnOff:        cfg.Resumption.DelayBeforeIgnOff,
		HMILevelRestoreDelay:     cfg.Resumption.HMILevelRestoreDelay,
		PersistenceFlushInterval: cfg.Resumption.PersistenceFlushInterval,
		AppStorageFolder:         cfg.Storage.AppStorageFolder,
	}
}

// session tracks one application's restore sequence
type session struct {
	state           types.ResumptionState
	contentRestored bool
	outstanding     int
	failures        int
}

// Controller is the resumption controller
type Controller struct {
	cfg      Config
	store    Store
	registry Registry
	channel  Channel
	policy   Policy
	clock    timer.Clock
	breaker  *resilience.Breaker
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	queue *pendingQueue

	// flushMu serializes flushes from the copy of the records to the dirty
	// flag update, so an older snapshot never lands after a newer one
	flushMu sync.Mutex

	mu          sync.Mutex
	records     map[types.RecordKey]*types.Record // Protected by mu
	generation  uint64                            // bumped by every record mutation
	dataSaved   bool
	registering map[types.RecordKey]int
	sessions    map[uint32]*session
	launchTime  time.Time
	lastIgnOff  time.Time
	lastFlush   *time.Time
	flushTimer  timer.Handle
}

// New creates a controller. Call Init before use.
func New(cfg Config, store Store, registry Registry, channel Channel, policy Policy, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := timer.New()
	return &Controller{
		cfg:         cfg,
		store:       store,
		registry:    registry,
		channel:     channel,
		policy:      policy,
		clock:       clock,
		logger:      logger.Named("resumption"),
		queue:       newPendingQueue(),
		records:     make(map[types.RecordKey]*types.Record),
		dataSaved:   true,
		registering: make(map[types.RecordKey]int),
		sessions:    make(map[uint32]*session),
		launchTime:  clock.Now(),
	}
}

// WithMetrics adds metrics tracking to the controller
func (c *Controller) WithMetrics(metrics *monitoring.Metrics) *Controller {
	c.metrics = metrics
	return c
}

// WithClock replaces the scheduler and time source
func (c *Controller) WithClock(clock timer.Clock) *Controller {
	c.clock = clock
	c.launchTime = clock.Now()
	return c
}

// WithBreaker guards store writes with a circuit breaker
func (c *Controller) WithBreaker(breaker *resilience.Breaker) *Controller {
	c.breaker = breaker
	return c
}

// Init loads saved records and starts the periodic flush. A storage failure
// is returned, but the controller stays usable with an empty index.
func (c *Controller) Init(ctx context.Context) error {
	c.ResetLaunchTime()
	err := c.LoadResumeData(ctx)
	c.StartSavePersistentDataTimer()
	return err
}

// Shutdown stops both timers and flushes unsaved data
func (c *Controller) Shutdown(ctx context.Context) error {
	c.StopRestoreHmiLevelTimer()
	c.StopSavePersistentDataTimer()
	if c.IsDataSaved() {
		return nil
	}
	return c.flush(ctx)
}

// ResetLaunchTime restarts the window used by CheckDelayAfterIgnOn
func (c *Controller) ResetLaunchTime() {
	now := c.clock.Now()
	c.mu.Lock()
	c.launchTime = now
	c.mu.Unlock()
}

// LaunchTime returns the start of the current ignition-on window
func (c *Controller) LaunchTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.launchTime
}

// IsDataSaved reports whether every record change has been flushed
func (c *Controller) IsDataSaved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataSaved
}

// ApplicationsDataUpdated marks the in-memory data as dirty
func (c *Controller) ApplicationsDataUpdated() {
	c.mu.Lock()
	c.markDirty()
	c.mu.Unlock()
}

// markDirty must hold mu
func (c *Controller) markDirty() {
	c.dataSaved = false
	c.generation++
}

// State returns the restore sequence state of an application
func (c *Controller) State(appID uint32) types.ResumptionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[appID]; ok {
		return s.state
	}
	return types.ResumptionIdle
}

// Outstanding returns the number of restore requests still waiting for a reply
func (c *Controller) Outstanding(appID uint32) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[appID]; ok {
		return s.outstanding
	}
	return 0
}

// Pending returns the applications waiting for their HMI level
func (c *Controller) Pending() []types.PendingResumption {
	return c.queue.snapshot()
}

// Records returns copies of all saved records ordered by key
func (c *Controller) Records() []*types.Record {
	c.mu.Lock()
	out := make([]*types.Record, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r.Clone())
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

// Record returns a copy of one saved record
func (c *Controller) Record(policyAppID, deviceID string) (*types.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[types.RecordKey{PolicyAppID: policyAppID, DeviceID: deviceID}]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Stats returns controller statistics
func (c *Controller) Stats() types.ResumptionStats {
	pending := c.queue.len()

	c.mu.Lock()
	defer c.mu.Unlock()
	stats := types.ResumptionStats{
		SavedRecords:     len(c.records),
		Pending:          pending,
		DataSaved:        c.dataSaved,
		ResumptionActive: len(c.registering) > 0,
		LaunchTime:       c.launchTime,
	}
	if !c.lastIgnOff.IsZero() {
		t := c.lastIgnOff
		stats.LastIgnOff = &t
	}
	if c.lastFlush != nil {
		t := *c.lastFlush
		stats.LastFlush = &t
	}
	return stats
}

// setState must hold mu
func (c *Controller) setState(appID uint32, state types.ResumptionState) *session {
	s, ok := c.sessions[appID]
	if !ok {
		s = &session{}
		c.sessions[appID] = s
	}
	s.state = state
	return s
}

func (c *Controller) finish(appID uint32, state types.ResumptionState) {
	c.mu.Lock()
	s, ok := c.sessions[appID]
	if ok {
		s.state = state
	}
	c.mu.Unlock()

	if ok && c.metrics != nil {
		c.metrics.IncResumptionOutcome(string(state))
	}
}

func (c *Controller) updatePendingGauge() {
	if c.metrics != nil {
		c.metrics.SetPendingResumptions(c.queue.len())
	}
}

// now returns the current time as stored in records
func (c *Controller) now() time.Time {
	return c.clock.Now().UTC().Truncate(time.Second)
}
