package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors the sections that may be set from a TOML file.
// Durations are written as Go duration strings ("48h", "3s").
type fileConfig struct {
	HMI struct {
		RequestTimeout *string `toml:"request_timeout"`
	} `toml:"hmi"`
	Resumption struct {
		IgnitionCycleLimit       *int    `toml:"ignition_cycle_limit"`
		DataAgeLimit             *string `toml:"data_age_limit"`
		DelayAfterIgnOnLimit     *string `toml:"delay_after_ign_on"`
		DelayBeforeIgnOff        *string `toml:"delay_before_ign_off"`
		HMILevelRestoreDelay     *string `toml:"hmi_level_restore_delay"`
		PersistenceFlushInterval *string `toml:"persistence_flush_interval"`
	} `toml:"resumption"`
	Storage struct {
		Backend          *string `toml:"backend"`
		Path             *string `toml:"path"`
		Compress         *bool   `toml:"compress"`
		AppStorageFolder *string `toml:"app_storage_folder"`
	} `toml:"storage"`
	Policy struct {
		Path *string `toml:"path"`
	} `toml:"policy"`
}

// LoadFile loads configuration from environment variables and a TOML file.
// A value set in the environment always wins over the file.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	o := overlay{}
	o.setDuration("HMI_REQUEST_TIMEOUT", raw.HMI.RequestTimeout, &cfg.HMI.RequestTimeout)
	o.setInt("RESUMPTION_IGN_CYCLE_LIMIT", raw.Resumption.IgnitionCycleLimit, &cfg.Resumption.IgnitionCycleLimit)
	o.setDuration("RESUMPTION_DATA_AGE_LIMIT", raw.Resumption.DataAgeLimit, &cfg.Resumption.DataAgeLimit)
	o.setDuration("RESUMPTION_DELAY_AFTER_IGN_ON", raw.Resumption.DelayAfterIgnOnLimit, &cfg.Resumption.DelayAfterIgnOnLimit)
	o.setDuration("RESUMPTION_DELAY_BEFORE_IGN_OFF", raw.Resumption.DelayBeforeIgnOff, &cfg.Resumption.DelayBeforeIgnOff)
	o.setDuration("RESUMPTION_HMI_LEVEL_DELAY", raw.Resumption.HMILevelRestoreDelay, &cfg.Resumption.HMILevelRestoreDelay)
	o.setDuration("RESUMPTION_FLUSH_INTERVAL", raw.Resumption.PersistenceFlushInterval, &cfg.Resumption.PersistenceFlushInterval)
	o.setString("STORAGE_BACKEND", raw.Storage.Backend, &cfg.Storage.Backend)
	o.setString("STORAGE_PATH", raw.Storage.Path, &cfg.Storage.Path)
	o.setBool("STORAGE_COMPRESS", raw.Storage.Compress, &cfg.Storage.Compress)
	o.setString("APP_STORAGE_FOLDER", raw.Storage.AppStorageFolder, &cfg.Storage.AppStorageFolder)
	o.setString("POLICY_PATH", raw.Policy.Path, &cfg.Policy.Path)
	if o.err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, o.err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// overlay applies file values to fields whose environment variable is unset.
type overlay struct {
	err error
}

func (o *overlay) skip(env string) bool {
	_, set := os.LookupEnv(env)
	return set || o.err != nil
}

func (o *overlay) setString(env string, v *string, dst *string) {
	if v == nil || o.skip(env) {
		return
	}
	*dst = *v
}

func (o *overlay) setInt(env string, v *int, dst *int) {
	if v == nil || o.skip(env) {
		return
	}
	*dst = *v
}

func (o *overlay) setBool(env string, v *bool, dst *bool) {
	if v == nil || o.skip(env) {
		return
	}
	*dst = *v
}

func (o *overlay) setDuration(env string, v *string, dst *time.Duration) {
	if v == nil || o.skip(env) {
		return
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		o.err = fmt.Errorf("%s: %w", env, err)
		return
	}
	*dst = d
}
