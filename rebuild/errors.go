package rebuild

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPipeline is returned by Acquire when nothing is renderable.
	ErrNoPipeline = errors.New("rebuild: no renderable pipeline")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("rebuild: machine closed")
)

// FatalFallbackError reports that the fallback program itself failed to
// build. The node is left Idle until the next structural change.
type FatalFallbackError struct {
	Label string

	// Diagnostic is the user-program failure that triggered the fallback.
	Diagnostic Diagnostic

	Err error
}

func (e *FatalFallbackError) Error() string {
	return fmt.Sprintf("rebuild: fallback pipeline %q failed to build: %v", e.Label, e.Err)
}

func (e *FatalFallbackError) Unwrap() error { return e.Err }
