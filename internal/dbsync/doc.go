// Package dbsync keeps a local single-file SQLite database synchronized
// with one logical object in a versioned remote store.
//
// Two operations are supported. Pull replaces local content with the
// remote tip; Push publishes local content as the new remote tip. Both
// run under a per-scope lock, detect conflicts instead of resolving
// them, and record the applied remote version in a durable manifest so
// the sequence stays resumable across crashes.
//
// The package deals in whole-file snapshots only. Consistent snapshots
// come from the engine's VACUUM INTO; application uses the engine's
// online backup so live connections observe a coherent result.
package dbsync
