package pipeline

import "fmt"

// StageError reports the stage at which a run aborted. The remaining stages
// are never attempted; cleanup and diagnostics collection still run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
