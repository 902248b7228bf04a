// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output tagged with the service name
//   - Development: Colored console output at debug level
//
// Every backend component receives a named child logger so that resumption,
// HMI transport and persistence lines can be told apart. The level is shared
// by all children and can be changed at runtime through LevelHandler:
//
//	logger := logging.FromConfig(cfg.Logging.Level, cfg.Logging.Development)
//	registry := app.NewManager(logger.Component("apps"))
//	router.PUT("/log/level", gin.WrapH(logger.LevelHandler()))
package logging
