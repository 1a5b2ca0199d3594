// Package config loads and validates the agent configuration.
//
// Configuration comes from a YAML file, overridable per-field through
// OFFWORKER_* environment variables. Before unmarshaling, the raw YAML
// is checked against an embedded CUE schema so a typo'd field name or a
// relative asset path fails with a positioned, field-level error instead
// of surfacing later as a broken cache.
package config
