// Package reference manages the genome FASTA and its smalt hash index.
// The genome must be provisioned by the operator; the index pair is built
// lazily and rebuilt whenever the genome is newer than the index files.
package reference
