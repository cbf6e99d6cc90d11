package store

import (
	"fmt"
	"strings"

	"github.com/GetStream/chatsync/api"
)

// BatchFailure records one item of a batch that could not be applied.
type BatchFailure struct {
	ID  string
	Err error
}

// BatchResult is the outcome of a best-effort batch. Conversation is the
// state after the last successful item, or nil when none succeeded.
type BatchResult struct {
	Conversation *api.Conversation
	Succeeded    []string
	Failed       []BatchFailure
}

// Err returns a *PartialBatchError when any item failed, nil otherwise.
func (r BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &PartialBatchError{Succeeded: len(r.Succeeded), Failed: r.Failed}
}

// PartialBatchError reports the failed items of a batch that otherwise
// completed.
type PartialBatchError struct {
	Succeeded int
	Failed    []BatchFailure
}

func (e *PartialBatchError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = f.ID
	}
	return fmt.Sprintf("%d of %d items failed: %s", len(e.Failed), len(e.Failed)+e.Succeeded, strings.Join(ids, ", "))
}

// Unwrap exposes the per-item errors to errors.Is and errors.As.
func (e *PartialBatchError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Err
	}
	return errs
}
