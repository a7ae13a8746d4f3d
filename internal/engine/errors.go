package engine

import (
	"errors"
	"fmt"
)

// TickError reports why a tick was abandoned. Nothing of an abandoned tick
// is committed.
type TickError struct {
	// Code identifies the stage that failed.
	Code TickErrorCode

	// Sensor is the cursor owner.
	Sensor string

	// EvaluationID is the id the tick would have committed, 0 if not known yet.
	EvaluationID int64

	// Err is the underlying failure.
	Err error
}

// TickErrorCode categorizes tick failures.
type TickErrorCode string

const (
	// ErrCodeCursorRead indicates the stored cursor could not be read.
	ErrCodeCursorRead TickErrorCode = "CURSOR_READ"

	// ErrCodeEvaluation indicates the evaluator failed, usually on storage.
	ErrCodeEvaluation TickErrorCode = "EVALUATION"

	// ErrCodeRunRequest indicates run requests could not be built.
	ErrCodeRunRequest TickErrorCode = "RUN_REQUEST"

	// ErrCodeLaunch indicates a run could not be recorded.
	ErrCodeLaunch TickErrorCode = "LAUNCH"

	// ErrCodeCommit indicates the cursor commit failed.
	ErrCodeCommit TickErrorCode = "COMMIT"
)

func (e *TickError) Error() string {
	if e.EvaluationID != 0 {
		return fmt.Sprintf("%s: sensor %s evaluation %d: %v", e.Code, e.Sensor, e.EvaluationID, e.Err)
	}
	return fmt.Sprintf("%s: sensor %s: %v", e.Code, e.Sensor, e.Err)
}

func (e *TickError) Unwrap() error {
	return e.Err
}

// IsTickError reports whether err is a TickError with the given code.
// Uses errors.As to handle wrapped errors.
func IsTickError(err error, code TickErrorCode) bool {
	var te *TickError
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}
