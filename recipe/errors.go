package recipe

import (
	"errors"
	"fmt"
)

// Phase failure classes. Every error returned by a phase matches exactly
// one of them with errors.Is.
var (
	ErrConfig  = errors.New("configuration error")
	ErrAcquire = errors.New("acquisition error")
	ErrBuild   = errors.New("build error")
	ErrPackage = errors.New("packaging error")
)

// Phase names.
const (
	PhaseConfigure = "configure"
	PhaseSource    = "source"
	PhaseBuild     = "build"
	PhasePackage   = "package"
)

// PhaseError reports the phase that aborted the pipeline.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return e.Phase + ": " + e.Err.Error()
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Errorf formats an error classified as kind. The format may itself wrap
// a cause with %w; both kind and the cause stay reachable via errors.Is.
func Errorf(kind error, format string, args ...any) error {
	return classified{kind: kind, err: fmt.Errorf(format, args...)}
}

type classified struct {
	kind error
	err  error
}

func (c classified) Error() string {
	return c.kind.Error() + ": " + c.err.Error()
}

func (c classified) Unwrap() []error {
	return []error{c.kind, c.err}
}
