package audit

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("job not found")
	ErrCancelled = errors.New("job cancelled")
)

// StageTimeoutError marks a stage that exceeded its bounded duration. The
// job record names the stage so operators can tell a slow index build from a
// slow provider.
type StageTimeoutError struct {
	Stage string
	Err   error
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("stage %s timed out: %v", e.Stage, e.Err)
}

func (e *StageTimeoutError) Unwrap() error { return e.Err }
