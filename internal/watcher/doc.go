// Package watcher turns FASTQ directory activity into pipeline runs. File
// events are debounced until the directory goes quiet so a multi-file
// upload settles into a single run instead of one per file.
package watcher
