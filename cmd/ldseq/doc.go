// Package main hosts the ldseq CLI entrypoint and command graph.
//
// The Cobra command tree maps terminal invocations onto the alignment
// pipeline, the counting and analysis passes, workspace inspection, and
// configuration scaffolding. Configuration resolution, logging setup, and
// the single-instance run lock are centralized here so individual commands
// stay thin wrappers over the internal packages.
package main
