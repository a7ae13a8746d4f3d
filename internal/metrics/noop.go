package metrics

import "time"

// NoopSink discards everything. Used when metrics are disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickStarted()                            {}
func (n *NoopSink) TickCompleted(time.Duration, int, error) {}
func (n *NoopSink) TickDrift(time.Duration)                 {}
func (n *NoopSink) AssetsEvaluated(int)                     {}
func (n *NoopSink) PartitionsRequested(int)                 {}
func (n *NoopSink) EvaluationRecordsWritten(int)            {}
func (n *NoopSink) RunLaunched(string)                      {}
func (n *NoopSink) CursorCommitted(int64)                   {}
