package catalog

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// Returned when a requested job name is not in the catalog.
//
// The error matches [errdefs.ErrNotFound], so callers can test for it with
// errdefs.IsNotFound as well as errors.As.
type JobNotFoundError struct {
	Name string // The unresolvable job name, as requested.
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job %q not found", e.Name)
}

func (e *JobNotFoundError) Unwrap() error {
	return errdefs.ErrNotFound
}
