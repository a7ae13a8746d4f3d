// Package metrics records daemon and evaluator activity. Every Sink method
// is fire-and-forget and never blocks the tick.
package metrics

import "time"

type Sink interface {
	// Tick lifecycle
	TickStarted()
	TickCompleted(duration time.Duration, runsRequested int, err error)
	TickDrift(drift time.Duration)

	// Evaluation
	AssetsEvaluated(count int)
	PartitionsRequested(count int)
	EvaluationRecordsWritten(count int)

	// Launch outcomes
	RunLaunched(outcome string)
	CursorCommitted(evaluationID int64)
}

// Launch outcomes for RunLaunched.
const (
	OutcomeLaunched = "launched"
	OutcomeExisting = "existing"
	OutcomeFailed   = "failed"
)
