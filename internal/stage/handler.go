package stage

import (
	"context"

	"ldseq/internal/sample"
)

// Handler describes the contract the pipeline scheduler needs from each
// per-sample stage.
type Handler interface {
	// Name identifies the stage in logs and run records.
	Name() string
	// Fresh reports whether the stage outputs are already newer than the
	// sample inputs, in which case Execute is skipped.
	Fresh(context.Context, *sample.Sample) (bool, error)
	Execute(context.Context, *sample.Sample) error
	HealthCheck(context.Context) Health
}
