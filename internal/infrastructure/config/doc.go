// Package config provides 12-factor configuration management for the head-unit backend.
//
// Configuration is loaded from environment variables with sensible defaults.
// An optional TOML file can supply the resumption, storage and policy
// sections; environment variables still override anything set in the file.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - HMI: Head-unit request timeout
//   - Resumption: Eligibility limits and timer periods
//   - Storage: Persistent store backend and paths
//   - Policy: Policy table location
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Flushing every %s\n", cfg.Resumption.PersistenceFlushInterval)
//
// Environment Variables:
//   - PORT, HOST, HMI_REQUEST_TIMEOUT
//   - RESUMPTION_IGN_CYCLE_LIMIT, RESUMPTION_DATA_AGE_LIMIT, RESUMPTION_DELAY_AFTER_IGN_ON,
//     RESUMPTION_DELAY_BEFORE_IGN_OFF, RESUMPTION_HMI_LEVEL_DELAY, RESUMPTION_FLUSH_INTERVAL
//   - STORAGE_BACKEND, STORAGE_PATH, STORAGE_COMPRESS, APP_STORAGE_FOLDER, POLICY_PATH
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
