package hmi

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/timer"
)

type pendingRequest struct {
	method   string
	observer Observer
	expiry   timer.Handle
}

// Dispatcher correlates HMI requests with their replies
type Dispatcher struct {
	transport Transport
	timeout   time.Duration
	clock     timer.Clock
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	mu      sync.Mutex
	nextID  uint32
	pending map[uint32]*pendingRequest
}

// NewDispatcher creates a dispatcher sending through transport. A zero
// timeout waits for replies indefinitely.
func NewDispatcher(transport Transport, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		transport: transport,
		timeout:   timeout,
		clock:     timer.New(),
		logger:    logger.Named("hmi"),
		nextID:    1,
		pending:   make(map[uint32]*pendingRequest),
	}
}

// WithMetrics adds metrics tracking to the dispatcher
func (d *Dispatcher) WithMetrics(metrics *monitoring.Metrics) *Dispatcher {
	d.metrics = metrics
	return d
}

// WithClock replaces the clock used for request timeouts
func (d *Dispatcher) WithClock(clock timer.Clock) *Dispatcher {
	d.clock = clock
	return d
}

// Send assigns a correlation id and sends the request. When observer is set
// and the request expects a reply, the observer is called exactly once with
// the reply, a TIMED_OUT event, or an ABORTED event on disconnect.
func (d *Dispatcher) Send(req Request, observer Observer) (uint32, error) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	req.CorrelationID = id
	if observer != nil && !req.Notification {
		p := &pendingRequest{method: req.Method, observer: observer}
		if d.timeout > 0 {
			p.expiry = d.clock.AfterFunc(d.timeout, func() { d.expire(id) })
		}
		d.pending[id] = p
	}
	d.mu.Unlock()

	if d.transport == nil {
		d.drop(id)
		d.record(req.Method, "NOT_CONNECTED")
		return 0, ErrNotConnected
	}
	if err := d.transport.Send(req); err != nil {
		d.drop(id)
		d.record(req.Method, "SEND_FAILED")
		return 0, fmt.Errorf("failed to send %s: %w", req.Method, err)
	}

	d.record(req.Method, "SENT")
	return id, nil
}

// Deliver routes a reply to the observer registered for its correlation id.
// It reports whether a waiting observer was found.
func (d *Dispatcher) Deliver(ev Event) bool {
	d.mu.Lock()
	p, ok := d.pending[ev.CorrelationID]
	if ok {
		delete(d.pending, ev.CorrelationID)
	}
	d.mu.Unlock()

	if !ok {
		d.logger.Debug("reply without waiting request",
			zap.Uint32("correlation_id", ev.CorrelationID),
			zap.String("method", ev.Method))
		return false
	}
	if p.expiry != nil {
		p.expiry.Stop()
	}
	if ev.Method == "" {
		ev.Method = p.method
	}

	d.record(ev.Method, string(ev.ResultCode))
	p.observer(ev)
	return true
}

// CancelAll aborts every waiting request, used when the head unit disconnects
func (d *Dispatcher) CancelAll() int {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[uint32]*pendingRequest)
	d.mu.Unlock()

	for id, p := range pending {
		if p.expiry != nil {
			p.expiry.Stop()
		}
		d.record(p.method, string(ResultAborted))
		p.observer(Event{CorrelationID: id, Method: p.method, ResultCode: ResultAborted})
	}
	return len(pending)
}

// Pending returns the number of requests waiting for a reply
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) expire(id uint32) {
	d.mu.Lock()
	p, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	d.mu.Unlock()

	if !ok {
		return
	}
	d.logger.Warn("hmi request timed out",
		zap.Uint32("correlation_id", id),
		zap.String("method", p.method),
		zap.Duration("timeout", d.timeout))
	d.record(p.method, string(ResultTimedOut))
	p.observer(Event{CorrelationID: id, Method: p.method, ResultCode: ResultTimedOut})
}

func (d *Dispatcher) drop(id uint32) {
	d.mu.Lock()
	p, ok := d.pending[id]
	delete(d.pending, id)
	d.mu.Unlock()
	if ok && p.expiry != nil {
		p.expiry.Stop()
	}
}

func (d *Dispatcher) record(method, result string) {
	if d.metrics != nil {
		d.metrics.RecordHMIRequest(method, result)
	}
}
