// Package server assembles the resumption service.
//
// NewServer opens the persistent store, loads the policy table, creates the
// application registry, the head unit channel and the resumption controller,
// and mounts the HTTP API. Head unit notifications are routed to the
// controller: OnAppActivated cancels a pending HMI level restoration,
// OnExitAllApplications(SUSPEND) saves state at ignition-off and OnAwakeSDL
// restarts the ignition-on window.
//
// Shutdown stops the HTTP server, flushes unsaved resumption data and closes
// the store.
package server
