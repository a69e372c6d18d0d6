package pipeline

import (
	"fmt"
	"strings"
	"time"

	"ldseq/internal/sample"
	"ldseq/internal/services"
)

// Outcome classifies how one sample finished.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Stage actions recorded in a sample's trace.
const (
	StageExecuted = "executed"
	StageSkipped  = "skipped"
	StageFailed   = "failed"
)

// StageTrace records what happened to one stage of a sample's chain.
type StageTrace struct {
	Stage    string
	Action   string
	Duration time.Duration
}

// Result captures the outcome of one sample's stage chain.
type Result struct {
	Sample      sample.Sample
	Outcome     Outcome
	Stages      []StageTrace
	FailedStage string
	Err         error
	Category    string
	Duration    time.Duration
}

func (r *Result) markFailed(stageName string, err error) {
	r.Outcome = OutcomeFailed
	r.FailedStage = stageName
	r.Err = err
	r.Category = services.FailureCategory(err)
}

// StageSummary renders the trace in a compact single-line form for the
// ledger and the run log.
func (r Result) StageSummary() string {
	parts := make([]string, 0, len(r.Stages))
	for _, trace := range r.Stages {
		parts = append(parts, fmt.Sprintf("%s=%s", trace.Stage, trace.Action))
	}
	return strings.Join(parts, " ")
}

// Summary aggregates a whole run.
type Summary struct {
	RunID       string
	Started     time.Time
	Finished    time.Time
	Results     []Result
	Skipped     []sample.Skipped
	LogsRemoved []string
}

// Duration reports the wall-clock span of the run.
func (s *Summary) Duration() time.Duration {
	if s.Finished.IsZero() || s.Started.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}

// Completed counts samples whose whole chain succeeded or was skipped fresh.
func (s *Summary) Completed() int {
	count := 0
	for _, result := range s.Results {
		if result.Outcome == OutcomeCompleted {
			count++
		}
	}
	return count
}

// Failed counts samples that stopped at a stage error.
func (s *Summary) Failed() int {
	count := 0
	for _, result := range s.Results {
		if result.Outcome == OutcomeFailed {
			count++
		}
	}
	return count
}

// Failures returns only the failed results, in discovery order.
func (s *Summary) Failures() []Result {
	var failures []Result
	for _, result := range s.Results {
		if result.Outcome == OutcomeFailed {
			failures = append(failures, result)
		}
	}
	return failures
}

// Succeeded reports whether every discovered sample completed.
func (s *Summary) Succeeded() bool {
	return s.Failed() == 0
}
