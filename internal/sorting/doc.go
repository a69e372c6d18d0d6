// Package sorting implements the coordinate-sort stage. It turns the
// unsorted alignment BAM into the final sorted BAM and removes the
// intermediate once the sorted file has been validated and promoted.
package sorting
