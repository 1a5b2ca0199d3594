// Package harness runs declarative agent scenarios for conformance
// testing.
//
// A scenario is a YAML file describing an agent configuration, the
// upstream origin's content, a sequence of delivered events (pushes,
// clicks, messages, sync wakeups), and assertions over the outcome:
// notifications shown, cache contents, worker state, and the durable
// event trace.
//
// Scenarios execute against a real worker loop over an in-memory store,
// with deterministic IDs and a deterministic logical clock, so the same
// scenario always produces the same trace. Golden files snapshot the
// canonical trace bytes and catch any behavioral drift.
package harness
