// Package dedupe provides a TTL-based, size-bounded cache for tracking
// seen event keys.
//
// Each pool item keeps its own cache and checks inbound gateway event IDs
// against it before routing, so events redelivered across sync reconnects
// are handled exactly once. The size bound keeps a long-lived connection
// from growing the cache without limit.
package dedupe
