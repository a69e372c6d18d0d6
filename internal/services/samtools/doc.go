// Package samtools wraps the samtools toolkit for the BAM side of the
// pipeline: filtering aligner output to proper pairs, coordinate sorting,
// index generation, and integrity checks on produced files.
package samtools
