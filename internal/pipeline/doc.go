// Package pipeline schedules the per-sample stage chain across discovered
// read pairs with bounded concurrency.
//
// A failing sample never cancels its siblings: each sample runs its chain
// to the first error and records a typed result, and the run summary and
// ledger reflect every outcome. Startup problems (missing FASTQ directory,
// unusable reference, failing health checks) abort before any sample is
// scheduled.
package pipeline
