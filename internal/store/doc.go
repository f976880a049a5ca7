// Package store defines the persistence contract for tasks.
// It holds the TaskStore interface, the errors every implementation
// returns, and the transaction helper shared by SQL-backed stores.
// Implementations live under internal/platform.
package store
