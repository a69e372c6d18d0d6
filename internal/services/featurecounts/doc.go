// Package featurecounts wraps the featureCounts program so the counting
// stage can turn sorted alignments into a per-gene fragment count matrix.
package featurecounts
