// Package store keeps one lazily opened SQLite connection per database file.
//
// Handles are obtained from a [Registry]; acquiring the same [Config] twice
// returns the same [Handle]. A handle opens its connection on first use and,
// unless it was already open or its config asks to keep it alive, closes it
// again when the operation finishes. Opening switches the database into WAL
// journal mode.
//
// [Handle.Scope] brackets a group of statements in one transaction which is
// committed whether or not the body fails; the body's error is returned and
// commit or close failures are only logged.
//
// Statement builders ([SelectStatement], [ReplaceIntoStatement]) render the
// SQL text with literal values for display. Execution always uses the same
// statement shape with bound parameters.
package store
