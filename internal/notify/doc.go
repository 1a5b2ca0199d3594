// Package notify displays notifications and routes notification clicks.
//
// Display goes through the Notifier interface (the platform notification
// API stand-in). The dispatcher guarantees display happens-before the
// NOTIFICATION_SHOWN broadcast to open clients, and swallows broadcast
// failures: mirroring to an in-page notification center is best-effort.
package notify
