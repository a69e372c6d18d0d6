// Package counting turns the sorted alignments into a gene-level count
// matrix. featureCounts produces the raw table; a reshape pass drops the
// annotation columns and shortens the per-sample headers so the matrix can
// feed DESeq2 directly. Both steps honor the freshness guard and write
// through temp files.
package counting
