package resourcebus

import (
	"context"
	"errors"
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
)

// PhaseException is the top-level error returned by a dispatch phase once at
// least one resource has failed. It is built lazily (§9 "exception holder")
// by a holder so that a phase with no failures returns nil rather than an
// empty wrapper.
type PhaseException struct {
	Phase string // "checkpoint" or "restore"
	Errs  *multierror.Error
}

func (e *PhaseException) Error() string {
	return fmt.Sprintf("%s callbacks failed: %s", e.Phase, e.Errs.Error())
}

func (e *PhaseException) Unwrap() error {
	return e.Errs
}

// ErrRecursiveCheckpoint is the suppressed cause attached when a checkpoint
// is requested from inside a running callback (§5 recursion guard, S5).
var ErrRecursiveCheckpoint = errors.New("recursive checkpoint is not allowed")

// holder lazily builds one PhaseException per dispatch phase. Failures of
// the same phase type merge their suppressed chains flatly; any other error
// is appended as a new suppressed cause (§4.4, §9).
type holder struct {
	phase string
	exc   *PhaseException
}

func newHolder(phase string) *holder {
	return &holder{phase: phase}
}

func (h *holder) add(err error) {
	if err == nil {
		return
	}
	if h.exc == nil {
		h.exc = &PhaseException{Phase: h.phase, Errs: &multierror.Error{}}
	}
	var nested *PhaseException
	if errors.As(err, &nested) && nested.Phase == h.phase {
		for _, sub := range nested.Errs.Errors {
			h.exc.Errs = multierror.Append(h.exc.Errs, sub)
		}
		return
	}
	h.exc.Errs = multierror.Append(h.exc.Errs, err)
}

// addInterrupted records a callback that observed ctx cancellation; per §5
// "Cancellation and timeout" this is surfaced as a suppressed cause, not a
// silent drop.
func (h *holder) addInterrupted(ctx context.Context) {
	if ctx.Err() == nil {
		return
	}
	h.add(fmt.Errorf("interrupted during callback: %w", ctx.Err()))
}

// build returns the accumulated exception, or nil if nothing failed.
func (h *holder) build() error {
	if h.exc == nil || h.exc.Errs.Len() == 0 {
		return nil
	}
	return h.exc
}
