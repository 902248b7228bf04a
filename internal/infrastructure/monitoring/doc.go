/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the backend
service, tracking HTTP requests, resumption outcomes, HMI round trips and
persistence flushes.

# Features

- HTTP request metrics (latency, throughput)
- Resumption metrics (started, outcomes, pending entries)
- HMI request metrics (method, result code)
- Persistence metrics (saved records, flush status and duration)
- System metrics (uptime)

# Usage

	// Create metrics collector on its own registry
	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Time operations
	timer := monitoring.NewTimer(metrics, "persistence", "flush")
	// ... perform operation ...
	timer.Stop("success")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
*/
package monitoring
