// Package backfill imports the existing backlog of selected streams and
// returns once every stream is caught up.
//
// A backfill can optionally reset the stored positions of the selected
// value types first, which re-imports them from the start. Destination
// writes are idempotent, so a reset only costs time.
package backfill
