// Package http implements the diagnostics and control API of the resumption
// service.
//
// Applications are registered and unregistered through /apps, which runs the
// same registration bracket the mobile protocol layer does. Saved records and
// pending restorations are inspected under /resumption, and ignition events
// are injected through /lifecycle. Prometheus metrics are served on /metrics.
package http
