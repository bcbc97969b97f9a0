// Package bundle, C6's scheduling contract:
//
//	priority:  critical > high > normal > low
//	tie-break: earliest expiry first, then bundle id
//	eviction:  lowest priority first, then greatest remaining TTL first
//
// Directed bundles are deleted once delivered; epidemic bundles (no
// single destination) stay queued after a successful hand-off so other
// peers can still receive them, with the delivered-to peer recorded in
// HopSet to avoid redundant re-delivery.
package bundle
