package types

import "time"

// HMILevel represents how visible an application is on the head unit
type HMILevel string

const (
	HMILevelFull       HMILevel = "FULL"
	HMILevelLimited    HMILevel = "LIMITED"
	HMILevelBackground HMILevel = "BACKGROUND"
	HMILevelNone       HMILevel = "NONE"
)

// Valid reports whether the level is one of the known HMI levels
func (l HMILevel) Valid() bool {
	switch l {
	case HMILevelFull, HMILevelLimited, HMILevelBackground, HMILevelNone:
		return true
	}
	return false
}

// AudioStreamingState represents whether an application is heard
type AudioStreamingState string

const (
	AudioAudible    AudioStreamingState = "AUDIBLE"
	AudioAttenuated AudioStreamingState = "ATTENUATED"
	AudioNotAudible AudioStreamingState = "NOT_AUDIBLE"
)

// App represents a registered mobile application instance
type App struct {
	ID           uint32              `json:"app_id"`
	HMIAppID     uint32              `json:"hmi_app_id"`
	PolicyAppID  string              `json:"policy_app_id"`
	DeviceID     string              `json:"device_id"`
	DeviceMAC    string              `json:"device_mac,omitempty"`
	Name         string              `json:"name"`
	IsMedia      bool                `json:"is_media"`
	IsNavigation bool                `json:"is_navigation"`
	HashID       string              `json:"hash_id,omitempty"`
	HMILevel     HMILevel            `json:"hmi_level"`
	AudioState   AudioStreamingState `json:"audio_streaming_state"`
	Content      Content             `json:"content"`
	RegisteredAt time.Time           `json:"registered_at"`
}

// IsAudioApp reports whether the application may hold audio focus
func (a *App) IsAudioApp() bool {
	return a.IsMedia || a.IsNavigation
}

// Clone returns a deep copy of the application
func (a *App) Clone() *App {
	c := *a
	c.Content = a.Content.Clone()
	return &c
}

// Stats contains application registry statistics
type Stats struct {
	TotalApps      int     `json:"total_apps"`
	FullApps       int     `json:"full_apps"`
	LimitedApps    int     `json:"limited_apps"`
	BackgroundApps int     `json:"background_apps"`
	ActiveAppID    *uint32 `json:"active_app_id,omitempty"`
}
