// Package ingestion runs the import pipeline.
//
// A Scheduler owns one reader goroutine per stream (partition and value
// type). Each reader fetches the next page of records and hands it to a Job
// on a bounded worker pool, then waits for the job before fetching again, so
// a stream never has two pages in flight. A Job:
//   - refreshes and re-reads the page when it crosses an index boundary
//   - splits the page into single-index sub-batches, preserving order
//   - runs each sub-batch through the processor registered for its engine version
//   - advances the stream's position only after every sub-batch succeeded
//   - notifies listeners
//
// Failed pages are not retried inline. The position stays where it was and
// the reader fetches the same range again after a backoff.
package ingestion
