// Package services contains the sync engine's application services.
//
// SyncService merges remote note updates into the sync database and the
// local collection. Every run follows the same order: pages are written to
// the record store first, accepted notes are applied to the collection
// second, modification counters are copied back third, and only then is the
// deck's watermark advanced. A run that fails anywhere leaves the watermark
// untouched, so the next run fetches the same pages again; upserts are
// idempotent.
//
// MediaService uploads local media in size-bounded zip batches and
// downloads missing deck media, each through a bounded worker pool.
package services
