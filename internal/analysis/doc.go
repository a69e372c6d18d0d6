// Package analysis delegates differential expression to an operator-provided
// DESeq2 script. ldseq owns the plumbing only: the colData template, the
// precondition checks, and the Rscript invocation. The statistics live in R.
package analysis
