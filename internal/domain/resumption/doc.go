/*
Package resumption implements the resumption controller.

The controller persists per-application session state (HMI level, audio
state, menus, commands, choice sets, global properties, subscriptions and
files) and rebuilds it on the head unit when an application reconnects after
a re-registration, an ignition cycle, or a middleware restart.

# Restore sequence

	Idle -> AwaitingHMIData -> AwaitingHMILevel -> Resumed
	  \            \                  \
	   +------------+------------------+-> Aborted

StartResumption checks eligibility, replays the saved content as HMI requests
in a fixed order (files, sub-menus, commands, choice sets, global properties,
subscriptions, way points) and schedules the delayed HMI level restoration.
When the application hash does not match, only the HMI level is restored.
StartResumptionOnlyHMILevel skips the content replay.

# Concurrency

Controller methods are called from the HMI event path, the restore and flush
timers and the application lifecycle path. The pending set has its own lock.
No lock is held while calling the registry, the HMI channel or the store.
*/
package resumption
