// Package ledger persists run history backed by SQLite.
//
// Every pipeline invocation records one run row plus one row per sample
// describing how it finished. The status and history commands read this
// ledger, so it lives in the state directory rather than the workspace.
package ledger
