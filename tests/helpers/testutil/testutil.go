// Package testutil provides testing utilities and helpers for backend tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/domain/hmi"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// MockStore is a mock implementation of the persistent store for testing.
type MockStore struct {
	mock.Mock
}

// Load mocks the Load method.
func (m *MockStore) Load(ctx context.Context) ([]*types.Record, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Record), args.Error(1)
}

// Save mocks the Save method.
func (m *MockStore) Save(ctx context.Context, records []*types.Record) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

// GetLastIgnOffTime mocks the GetLastIgnOffTime method.
func (m *MockStore) GetLastIgnOffTime(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

// SetLastIgnOffTime mocks the SetLastIgnOffTime method.
func (m *MockStore) SetLastIgnOffTime(ctx context.Context, t time.Time) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

// Close mocks the Close method.
func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// NewMockStore creates a new mock store holding records, with every write succeeding.
func NewMockStore(t *testing.T, records ...*types.Record) *MockStore {
	t.Helper()
	m := new(MockStore)

	m.On("Load", mock.Anything).Return(records, nil).Maybe()
	m.On("Save", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("GetLastIgnOffTime", mock.Anything).Return(time.Time{}, nil).Maybe()
	m.On("SetLastIgnOffTime", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("Close").Return(nil).Maybe()

	return m
}

// MockPolicy is a mock implementation of the policy service for testing.
type MockPolicy struct {
	mock.Mock
}

// IsAppAllowed mocks the IsAppAllowed method.
func (m *MockPolicy) IsAppAllowed(policyAppID string) bool {
	return m.Called(policyAppID).Bool(0)
}

// DefaultHMILevel mocks the DefaultHMILevel method.
func (m *MockPolicy) DefaultHMILevel(policyAppID string) types.HMILevel {
	return m.Called(policyAppID).Get(0).(types.HMILevel)
}

// IsHMILevelAllowed mocks the IsHMILevelAllowed method.
func (m *MockPolicy) IsHMILevelAllowed(policyAppID string, level types.HMILevel) bool {
	return m.Called(policyAppID, level).Bool(0)
}

// NewMockPolicy creates a policy mock allowing everything with default level NONE.
func NewMockPolicy(t *testing.T) *MockPolicy {
	t.Helper()
	m := new(MockPolicy)

	m.On("IsAppAllowed", mock.Anything).Return(true).Maybe()
	m.On("DefaultHMILevel", mock.Anything).Return(types.HMILevelNone).Maybe()
	m.On("IsHMILevelAllowed", mock.Anything, mock.Anything).Return(true).Maybe()

	return m
}

// SentRequest is a request captured by RecordingChannel.
type SentRequest struct {
	hmi.Request
	Observer hmi.Observer
}

// RecordingChannel is an HMI channel that records requests and lets tests reply to them.
type RecordingChannel struct {
	mu     sync.Mutex
	nextID uint32
	sent   []SentRequest
	err    error
}

// NewRecordingChannel creates an empty recording channel.
func NewRecordingChannel() *RecordingChannel {
	return &RecordingChannel{nextID: 1}
}

// Send records the request.
func (c *RecordingChannel) Send(req hmi.Request, observer hmi.Observer) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	req.CorrelationID = c.nextID
	c.nextID++
	c.sent = append(c.sent, SentRequest{Request: req, Observer: observer})
	return req.CorrelationID, nil
}

// FailWith makes every following Send fail with err; nil restores success.
func (c *RecordingChannel) FailWith(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// Sent returns the recorded requests.
func (c *RecordingChannel) Sent() []SentRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentRequest(nil), c.sent...)
}

// Methods returns the method names of the recorded requests in order.
func (c *RecordingChannel) Methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	methods := make([]string, 0, len(c.sent))
	for _, s := range c.sent {
		methods = append(methods, s.Method)
	}
	return methods
}

// Count returns how many requests of method were recorded.
func (c *RecordingChannel) Count(method string) int {
	n := 0
	for _, m := range c.Methods() {
		if m == method {
			n++
		}
	}
	return n
}

// Reset forgets the recorded requests.
func (c *RecordingChannel) Reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

// ReplyAll delivers code to every observed request.
func (c *RecordingChannel) ReplyAll(code hmi.ResultCode) int {
	n := 0
	for _, s := range c.Sent() {
		if s.Observer != nil {
			s.Observer(hmi.Event{CorrelationID: s.CorrelationID, Method: s.Method, ResultCode: code})
			n++
		}
	}
	return n
}

// CreateTestApp creates a live test app with default values.
func CreateTestApp(t *testing.T, id uint32, policyAppID, deviceID string) *types.App {
	t.Helper()

	return &types.App{
		ID:          id,
		HMIAppID:    100 + id,
		PolicyAppID: policyAppID,
		DeviceID:    deviceID,
		Name:        "Test App",
		HMILevel:    types.HMILevelNone,
		AudioState:  types.AudioNotAudible,
	}
}

// CreateTestRecord creates a saved record with default values.
func CreateTestRecord(t *testing.T, policyAppID, deviceID string, hmiAppID uint32, savedAt time.Time) *types.Record {
	t.Helper()

	return &types.Record{
		PolicyAppID: policyAppID,
		DeviceID:    deviceID,
		HMIAppID:    hmiAppID,
		AppName:     "Test App",
		HMILevel:    types.HMILevelFull,
		AudioState:  types.AudioNotAudible,
		HashID:      "h1",
		TimeStamp:   savedAt.UTC().Truncate(time.Second),
	}
}
