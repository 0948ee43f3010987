package render

import (
	"errors"
	"fmt"

	"github.com/patchnotes/api/internal/model"
)

var (
	// ErrConcurrentModification means another writer transitioned the row
	// between our read and our conditional write. The losing caller must
	// discard its result; it may retry the whole operation.
	ErrConcurrentModification = errors.New("render state modified concurrently")

	// ErrMissingContent means a render was requested before the pipeline
	// produced highlights for it.
	ErrMissingContent = errors.New("patch note has no highlights to render")

	// ErrRenderActive means a reset was requested while the render is still
	// in flight; it must be abandoned first.
	ErrRenderActive = errors.New("render is still active")
)

// InvalidTransitionError reports a (state, event) pair that is not in the
// transition table. No stored state is mutated when it is returned.
type InvalidTransitionError struct {
	From  model.RenderState
	Event model.RenderEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid render transition: %s in state %s", e.Event, e.From)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
