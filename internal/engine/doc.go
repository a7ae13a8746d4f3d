// Package engine drives ticks of the scheduler.
//
// A tick is a pure function of the asset graph, the recorded history, the
// previous serialized cursor and the evaluation time. EvaluateTick computes
// it without writing anything: run requests, the next cursor and the
// evaluation records worth keeping.
//
// The Daemon repeats ticks on an interval. Each tick:
//  1. reads the sensor's cursor
//  2. evaluates the tick
//  3. launches run requests, treating an existing run id as launched
//  4. commits the cursor and evaluation records in one transaction
//
// Any failure abandons the tick before step 4, so the stored cursor never
// moves past work that was not done. Re-running an abandoned tick produces
// the same run ids, which makes step 3 idempotent.
//
// There is one writer per sensor. A second writer is detected at commit
// time by the store's evaluation id check.
package engine
