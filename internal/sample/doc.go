// Package sample discovers paired FASTQ inputs and derives the artifact
// paths each per-sample chain owns for the rest of the run.
package sample
