package workerpool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/trackreport/internal/cache"
	"github.com/banshee-data/trackreport/internal/params"
	"github.com/banshee-data/trackreport/internal/tracker"
	"github.com/banshee-data/trackreport/internal/transform"
)

// Kind classifies a task failure so it survives a process boundary.
type Kind string

const (
	KindUnknownTracker  Kind = "UnknownTracker"
	KindConfiguration   Kind = "Configuration"
	KindDataUnavailable Kind = "DataUnavailable"
	KindTransform       Kind = "Transform"
	KindCacheCorruption Kind = "CacheCorruption"
	KindInternal        Kind = "Internal"
)

// Classify maps an error onto its kind. nil classifies as "".
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, tracker.ErrUnknownTracker):
		return KindUnknownTracker
	case errors.Is(err, params.ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, tracker.ErrDataUnavailable):
		return KindDataUnavailable
	case errors.Is(err, transform.ErrTransform):
		return KindTransform
	case errors.Is(err, cache.ErrCorruption):
		return KindCacheCorruption
	default:
		return KindInternal
	}
}

// Sentinel returns the package sentinel matching the kind, nil for
// Internal and unknown kinds.
func (k Kind) Sentinel() error {
	switch k {
	case KindUnknownTracker:
		return tracker.ErrUnknownTracker
	case KindConfiguration:
		return params.ErrConfiguration
	case KindDataUnavailable:
		return tracker.ErrDataUnavailable
	case KindTransform:
		return transform.ErrTransform
	case KindCacheCorruption:
		return cache.ErrCorruption
	default:
		return nil
	}
}

// Report is the JSON document a worker child prints on stdout.
type Report struct {
	Tracker   string `json:"tracker"`
	OK        bool   `json:"ok"`
	Kind      Kind   `json:"kind,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// WriteReport encodes r as a single JSON line.
func WriteReport(w io.Writer, r Report) error {
	return json.NewEncoder(w).Encode(r)
}

// DecodeReport reads the report from the last stdout line holding a JSON
// object. Anything a tracker printed before it is ignored.
func DecodeReport(out []byte) (Report, error) {
	lines := bytes.Split(out, []byte("\n"))
	var lastErr error
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var r Report
		if err := json.Unmarshal(line, &r); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			continue
		}
		return r, nil
	}
	if lastErr != nil {
		return Report{}, fmt.Errorf("decode worker report: %w", lastErr)
	}
	return Report{}, errors.New("decode worker report: no report on stdout")
}

// RemoteError is a failure reported by a worker child.
type RemoteError struct {
	Job   string
	Kind  Kind
	Stage string
	Msg   string
}

func (e *RemoteError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("worker %s: %s in stage %s: %s", e.Job, e.Kind, e.Stage, e.Msg)
	}
	return fmt.Sprintf("worker %s: %s: %s", e.Job, e.Kind, e.Msg)
}

// Is matches the sentinel of the reported kind.
func (e *RemoteError) Is(target error) bool {
	s := e.Kind.Sentinel()
	return s != nil && target == s
}
