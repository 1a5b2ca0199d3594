// Package worker implements the offline worker's event loop.
//
// The worker is the agent's heart - it receives lifecycle, push,
// notification-click, sync, and message events, dispatches them to
// handlers, and records each handled event in the durable log.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// The worker processes all events in a single goroutine. This ensures:
// - Install happens-before activate, activate happens-before anything else
// - A reproducible event log on replay
// - Simple reasoning about the worker state machine
//
// Event Processing Flow:
//  1. Events enqueued to FIFO queue (from the control API, the periodic
//     scheduler, or internally)
//  2. Run() dequeues events one at a time
//  3. processEvent() routes to the handler for the event kind
//  4. The handler registers asynchronous work with the event's WaitUntil
//     tracker; the loop waits for that work before completing the event
//  5. The completed event is appended to the store's event log
//
// Request interception is deliberately NOT routed through this loop:
// fetches for independent requests proceed concurrently in the HTTP
// server's goroutines (see internal/router). The loop owns everything
// whose ordering matters; fetch ordering does not.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// All events stamped with a monotonic seq counter from Clock.Next().
// Never wall-clock timestamps for ordering.
//
// Keep-Alive:
// Every handler performing asynchronous work must register it via
// WaitUntil; otherwise the platform may tear the worker down
// mid-operation, silently losing a cache write or notification send.
//
// Log And Continue:
// Handler errors are logged with full event context and processing
// continues. Sync handlers in particular must never propagate errors -
// the platform would reschedule unbounded retries.
package worker
