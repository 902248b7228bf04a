package types

import "time"

// Record is the durable resumption snapshot of one application.
// (PolicyAppID, DeviceID) identifies a record; HMIAppID is unique across records.
type Record struct {
	PolicyAppID  string              `json:"policy_app_id"`
	DeviceID     string              `json:"device_id"`
	HMIAppID     uint32              `json:"hmi_app_id"`
	AppName      string              `json:"app_name,omitempty"`
	IsMedia      bool                `json:"is_media"`
	IsNavigation bool                `json:"is_navigation"`
	HMILevel     HMILevel            `json:"hmi_level"`
	AudioState   AudioStreamingState `json:"audio_streaming_state"`
	HashID       string              `json:"hash_id"`
	// IgnitionCycles counts ignition-off events since the record was saved
	IgnitionCycles int       `json:"ign_off_count"`
	TimeStamp      time.Time `json:"time_stamp"`
	DeviceMAC      string    `json:"device_mac,omitempty"`
	// DisconnectedBeforeIgnOff is set when the application was still
	// connected at the moment ignition went off
	DisconnectedBeforeIgnOff bool    `json:"disconnected_before_ign_off,omitempty"`
	Content                  Content `json:"content"`
}

// Key returns the identity of the record
func (r *Record) Key() RecordKey {
	return RecordKey{PolicyAppID: r.PolicyAppID, DeviceID: r.DeviceID}
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	c := *r
	c.Content = r.Content.Clone()
	return &c
}

// RecordKey identifies a record by application and device
type RecordKey struct {
	PolicyAppID string
	DeviceID    string
}

// String returns a printable form of the key
func (k RecordKey) String() string {
	return k.PolicyAppID + "@" + k.DeviceID
}

// ResumptionState is the progress of one restore sequence
type ResumptionState string

const (
	ResumptionIdle             ResumptionState = "idle"
	ResumptionAwaitingHMIData  ResumptionState = "awaiting_hmi_data"
	ResumptionAwaitingHMILevel ResumptionState = "awaiting_hmi_level"
	ResumptionResumed          ResumptionState = "resumed"
	ResumptionAborted          ResumptionState = "aborted"
)

// Terminal reports whether no further transition can happen
func (s ResumptionState) Terminal() bool {
	return s == ResumptionResumed || s == ResumptionAborted
}

// PendingResumption is an application waiting for its HMI level to be restored
type PendingResumption struct {
	AppID       uint32    `json:"app_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// ResumptionStats contains resumption controller statistics
type ResumptionStats struct {
	SavedRecords     int        `json:"saved_records"`
	Pending          int        `json:"pending"`
	DataSaved        bool       `json:"data_saved"`
	ResumptionActive bool       `json:"resumption_active"`
	LaunchTime       time.Time  `json:"launch_time"`
	LastIgnOff       *time.Time `json:"last_ign_off,omitempty"`
	LastFlush        *time.Time `json:"last_flush,omitempty"`
}
