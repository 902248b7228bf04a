/*
Package timer provides the process-wide one-shot and periodic callback
facility used by the resumption controller.

Two schedulers are available:

  - Scheduler runs callbacks on real time
  - Manual fires callbacks only when its clock is advanced, for tests

Both return a Handle whose Stop cancels the callback. A stopped handle never
fires again, though a callback that already started is allowed to finish.

Usage:

	sched := timer.New()
	h := sched.Every(10*time.Second, controller.SaveDataOnTimer)
	defer h.Stop()
*/
package timer
