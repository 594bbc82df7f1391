package tracker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownTracker is matched by every UnknownTrackerError.
	ErrUnknownTracker = errors.New("unknown tracker")
	// ErrDataUnavailable is matched by every DataUnavailableError.
	ErrDataUnavailable = errors.New("data unavailable")
)

// UnknownTrackerError is returned when a name resolves to no tracker, or to
// more than one when given without its module.
type UnknownTrackerError struct {
	Name string
	// Suggestions are the available derived trackers, sorted.
	Suggestions []string
	// Ambiguous lists the matching identities when Name is not unique.
	Ambiguous []string
}

func (e *UnknownTrackerError) Error() string {
	if len(e.Ambiguous) > 0 {
		return fmt.Sprintf("ambiguous tracker %q: matches %s", e.Name, strings.Join(e.Ambiguous, ", "))
	}
	return fmt.Sprintf("unknown tracker %q", e.Name)
}

// Is makes errors.Is(err, ErrUnknownTracker) true.
func (e *UnknownTrackerError) Is(target error) bool {
	return target == ErrUnknownTracker
}

// DataUnavailableError reports that the source could not provide the
// requested tracks or slices.
type DataUnavailableError struct {
	Tracker string
	Reason  string
	Err     error
}

func (e *DataUnavailableError) Error() string {
	var b strings.Builder
	b.WriteString("data unavailable")
	if e.Tracker != "" {
		fmt.Fprintf(&b, " for %s", e.Tracker)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDataUnavailable) true.
func (e *DataUnavailableError) Is(target error) bool {
	return target == ErrDataUnavailable
}

// Unavailable builds a DataUnavailableError.
func Unavailable(tracker, format string, args ...any) error {
	return &DataUnavailableError{Tracker: tracker, Reason: fmt.Sprintf(format, args...)}
}
