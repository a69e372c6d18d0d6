// Package indexing implements the BAM index stage. Indexing is retried
// without the thread flag when the threaded form fails, since older
// samtools releases reject -@ for index.
package indexing
