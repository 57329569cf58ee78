package boot

import (
	"fmt"
	"time"

	"github.com/skyline93/strvct/internal/repository"
)

// State is a step of the boot sequence.
type State uint8

// The boot states in the order they are entered. Error can follow any of
// them.
const (
	Idle State = iota
	LoadingIndex
	MaybePrimingCam
	EvaluatingCss
	EvaluatingJs
	Done
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingIndex:
		return "loading index"
	case MaybePrimingCam:
		return "priming cache"
	case EvaluatingCss:
		return "applying stylesheets"
	case EvaluatingJs:
		return "evaluating scripts"
	case Done:
		return "done"
	case Error:
		return "error"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Event reports that one item of a phase was processed. Progress is the
// fraction of the phase completed, in (0, 1].
type Event struct {
	State    State
	Path     string
	Progress float64
}

// Report is passed to the terminal callback once the boot is over.
type Report struct {
	RunID     string
	State     State
	Err       error
	Resources int
	Duration  time.Duration
	Stats     repository.Stats
}

// BootError is the terminal error of a failed boot. It names the state the
// boot failed in and the path that was loading at the time.
type BootError struct {
	State State
	Path  string
	Err   error
}

func (e *BootError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("boot failed while %v: %v", e.State, e.Err)
	}
	return fmt.Sprintf("boot failed while %v (loading %v): %v", e.State, e.Path, e.Err)
}

func (e *BootError) Unwrap() error { return e.Err }
