package params

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration is matched by every ConfigurationError.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a missing, malformed or unrecognized option for a
// tracker, transformer or renderer.
type ConfigurationError struct {
	Component string
	Option    string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Component != "" {
		fmt.Fprintf(&b, " in %s", e.Component)
	}
	if e.Option != "" {
		fmt.Fprintf(&b, ": option %q", e.Option)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Is makes errors.Is(err, ErrConfiguration) true.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NotRecognized builds the error for options a component does not declare.
func NotRecognized(component string, names []string) error {
	return &ConfigurationError{
		Component: component,
		Option:    strings.Join(names, ","),
		Reason:    "not recognized",
	}
}

// Missing builds the error for a missing required option.
func Missing(component, option string) error {
	return &ConfigurationError{Component: component, Option: option, Reason: "required"}
}
