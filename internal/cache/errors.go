package cache

import (
	"errors"
	"fmt"
)

// ErrCorruption is matched by every CorruptionError.
var ErrCorruption = errors.New("cache corruption")

// CorruptionError reports a stored entry that could not be decoded. The
// entry has been dropped; callers treat it as a miss.
type CorruptionError struct {
	Identity string
	Key      string
	Err      error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("cache corruption for %s (%s): %v", e.Identity, shortKey(e.Key), e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCorruption) true.
func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorruption
}

func shortKey(k string) string {
	if len(k) > 12 {
		return k[:12]
	}
	return k
}
