// Package replay reconstructs a synchronized multi-stream playback of an
// investigation.
//
// A Sequence merges captured lines and widget version changes into one total
// order:
//
//	timestamp ASC, version change before line, widget id ASC, version ASC, seq ASC
//
// Each event carries the delay to wait before presenting it, the gap to the
// previously emitted event scaled by the playback rate. The first event after
// Plan, Seek or Reset has no delay.
//
// Lines are read lazily in keyset-paginated pages on the replay index, so
// memory stays bounded for long investigations. Version changes are few and
// loaded eagerly. Replay is pull-based; a consumer may abandon a Sequence at
// any time.
package replay
