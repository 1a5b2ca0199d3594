// Package clients tracks open page instances of the application.
//
// The registry is queried on demand, never cached by callers: the set of
// open pages changes underneath the worker as tabs open and close. Each
// client owns a buffered outbox; broadcast is best-effort and a full or
// departed client never blocks the sender.
package clients
