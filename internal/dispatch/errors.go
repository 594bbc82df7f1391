package dispatch

import (
	"errors"
	"fmt"

	"github.com/banshee-data/trackreport/internal/workerpool"
)

// Stage names a step of a single dispatch.
type Stage string

const (
	StageResolving    Stage = "resolving"
	StageInvalidating Stage = "invalidating"
	StageFetching     Stage = "fetching"
	StageTransforming Stage = "transforming"
	StageRendering    Stage = "rendering"
)

// StageError tags a dispatch failure with the stage it happened in.
type StageError struct {
	Stage   Stage
	Tracker string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Tracker, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage recorded in err, or "" when err carries none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	var re *workerpool.RemoteError
	if errors.As(err, &re) {
		return Stage(re.Stage)
	}
	return ""
}

// ErrorKind classifies err for reports and exit summaries.
func ErrorKind(err error) workerpool.Kind {
	return workerpool.Classify(err)
}
