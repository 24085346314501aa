package rendergraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCycleDetected      = errors.New("cycle detected")
	ErrDanglingDependency = errors.New("dangling dependency")
	ErrUnboundPipeline    = errors.New("unbound pipeline")
	ErrInvalidHandle      = errors.New("invalid resource handle")
	ErrInvalidRange       = errors.New("range outside resource")
	ErrNotRecorded        = errors.New("no recorded frame to submit")
	ErrAlreadyRecorded    = errors.New("frame recorded but not submitted")
)

// GraphError reports a malformed graph. Kind is one of the sentinel errors
// above so callers can match it with errors.Is.
type GraphError struct {
	Kind     error
	Pass     string
	Resource string
	Detail   string
}

func (e *GraphError) Error() string {
	var sb strings.Builder
	sb.WriteString("render graph: ")
	sb.WriteString(e.Kind.Error())
	if e.Pass != "" {
		fmt.Fprintf(&sb, " in pass %q", e.Pass)
	}
	if e.Resource != "" {
		fmt.Fprintf(&sb, " on %q", e.Resource)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

func (e *GraphError) Unwrap() error {
	return e.Kind
}
