// Package main is the entry point for the head-unit resumption service.
//
// The service keeps the resumption records of mobile applications across
// disconnects and ignition cycles, and replays their state to the HMI when
// they register again.
//
// Architecture:
//
//	Mobile app registration → REST API → Resumption controller → Record store
//	                                                           → HMI (WebSocket)
//
// The server provides:
//   - REST API for application lifecycle and resumption records
//   - WebSocket channel to the head-unit HMI
//   - Prometheus metrics
//   - Graceful flush of resumption data on shutdown
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional TOML file (-config), environment still wins
//   - CLI flags (override both)
//
// Usage:
//
//	# Production mode
//	./server -config /etc/headunit/resumption.toml
//
//	# Development mode (colored logs, debug level)
//	./server -dev -port 8087
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
