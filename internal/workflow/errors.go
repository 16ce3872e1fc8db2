package workflow

import "fmt"

// Stage names used in errors, logs and metrics.
const (
	StageClassify = "classify"
	StageRetrieve = "retrieve"
)

// StageError reports which stage aborted a run. Err wraps one of the
// sentinels in pkg/errors.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
