// Package types provides shared data structures for the head-unit backend.
//
// This package defines core types used across all backend components,
// ensuring the live application registry, the resumption controller and the
// persistent store agree on one representation of session state.
//
// Core Types:
//   - App: Registered (live) mobile application
//   - Record: Durable resumption snapshot of one application
//   - Content: Menus, commands, choice sets, files and subscriptions
//
// State Management:
//   - HMILevel, AudioStreamingState: HMI-visible application state
//   - ResumptionState: Progress of one restore sequence
//   - PendingResumption: Scheduled HMI-level restoration
//
// Example Usage:
//
//	app := &types.App{
//	    PolicyAppID: "com.example.player",
//	    DeviceID:    "usb-0001",
//	    HMILevel:    types.HMILevelNone,
//	}
package types
