// Package bucket maintains the versioned cache bucket lifecycle.
//
// Exactly one bucket is current at any time; bumping the configured
// version and deleting all differently-named buckets is the sole
// invalidation mechanism. There is no per-entry TTL or size eviction.
//
// Install populates the bucket from the static asset manifest,
// best-effort. Activate deletes stale buckets, re-verifies the offline
// document (second chance after a partial install), and claims all open
// clients. Within activation, stale-bucket deletion happens-before client
// claiming.
package bucket
