// Package store provides SQLite-backed durable storage for one investigation.
//
// An investigation is a single self-contained file holding:
//   - Metadata: name, description, colour, schema version, clock source
//   - Widgets: immutable (id, version) configuration snapshots
//   - Raw data: append-only captured lines keyed by (widget, version, seq)
//
// # Ordering
//
// Every line carries a capture-clock timestamp in microseconds and a Seq
// that is gapless and 0-based within its (widget, version). Replay order is
// (timestamp, widget_id, widget_version, seq), backed by a covering index.
// Read queries always name an ORDER BY so results are identical across runs.
//
// # Concurrency
//
// Appends to one widget are serialized by a per-widget mutex. A store-wide
// write mutex is held only around a single write transaction. The lock order
// is widget mutex, then write mutex, then the SQLite transaction. Readers use
// separate pool connections and never wait on writers (WAL).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: An acknowledged append survives power loss
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Lines must reference an existing widget version
//
// A second process opening the same file is rejected with ErrAlreadyOpen by
// an advisory lock on "<path>.lock".
package store
