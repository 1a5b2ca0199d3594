// Package record provides the core data types for the offline worker.
//
// This package contains type definitions and canonical serialization only.
// All other internal packages import record; record imports nothing
// internal. This keeps it the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Cached responses carry a content hash over canonical bytes, so the
//     "byte-for-byte replay while offline" invariant is checkable.
//   - Logical clocks (seq) only for ordering, never wall-clock timestamps.
//   - All JSON tags use snake_case.
package record
