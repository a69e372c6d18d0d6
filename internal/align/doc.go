// Package align implements the mapping stage: it streams smalt alignments
// for one read pair through a samtools proper-pair filter into an unsorted
// BAM, producing the final file only after the stream validated cleanly.
package align
