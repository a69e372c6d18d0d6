// Package smalt wraps the smalt aligner so the align stage can map
// paired-end reads against the reference index and the reference manager
// can build the index when it is missing.
//
// It exposes a Client interface and a CLI implementation that shells out
// through a services.Executor. Tests can swap in fakes to avoid executing
// the real aligner while still exercising argument assembly.
package smalt
