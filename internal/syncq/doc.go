// Package syncq implements the background and periodic sync hooks.
//
// Background sync drains the durable pending-task queue to the upstream
// origin, sequentially. Periodic sync scans for due tasks and issues one
// reminder notification per task.
//
// Both routines are best-effort by contract: errors are caught and
// logged, never propagated to the event loop, because a rethrow would
// make the platform reschedule unbounded retries.
package syncq
