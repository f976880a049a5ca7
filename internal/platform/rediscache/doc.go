// Package rediscache provides a Redis-backed read-through cache in front of
// any store.TaskStore.
//
// Only single-task lookups are cached. Listings and active counts always
// reach the wrapped store because the service rules depend on them. Redis
// outages degrade to uncached reads and are never surfaced to callers.
package rediscache
