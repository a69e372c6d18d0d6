// Package services defines shared utilities consumed by the pipeline stages
// and external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp sample names, stage names, and run
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent between the summary, the ledger, and exit
//     codes.
//   - The Executor abstraction that makes external command execution
//     injectable in tests.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
