// Package postgres implements store.TaskStore on PostgreSQL through
// database/sql and the pgx stdlib driver. Per-user exclusive sections are
// transaction-scoped advisory locks.
package postgres
