// Package push parses push payloads into normalized notifications.
//
// A payload is tried as JSON first, then as plain text with an optional
// "|" delimiter, and finally falls back to the default record. The
// top-level entry point never fails: a push event must never go silently
// unhandled.
//
// The JSON merge is an explicit two-step overwrite (base defaults ← raw
// payload ← computed title/body) so the precedence rule stays auditable.
//
// The plain-text fallback deliberately puts the text BEFORE the "|" into
// the body and the text AFTER it into the title. Upstream senders depend
// on this ordering; do not "fix" it.
package push
