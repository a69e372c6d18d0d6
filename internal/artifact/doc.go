// Package artifact implements the filesystem discipline shared by every
// pipeline stage: mtime-based freshness checks, temp-write plus atomic-rename
// promotion, and end-of-run cleanup of empty log files.
//
// Freshness is the only cross-run coordination mechanism in the pipeline, so
// the predicate lives here in one unit-testable place instead of being
// re-derived per stage.
package artifact
