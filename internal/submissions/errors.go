package submissions

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadySubmitting = errors.New("submission already in progress")
	ErrSlotFailed        = errors.New("required document slot previously failed")
)

const (
	ErrorCodeUpload       = "UPLOAD_ERROR"
	ErrorCodeCommit       = "COMMIT_ERROR"
	ErrorCodeLink         = "LINK_ERROR"
	ErrorCodeFinalize     = "FINALIZE_ERROR"
	ErrorCodeCompensation = "COMPENSATION_ERROR"
	ErrorCodeInternal     = "INTERNAL_ERROR"
)

// PhaseError carries which phase of a submission run failed along with
// the per-slot detail gathered so far.
type PhaseError struct {
	Phase      string
	SlotErrors map[string]string
	Retryable  bool
	Err        error
}

func (e *PhaseError) Error() string {
	return "phase " + e.Phase + ": " + e.Err.Error()
}

func (e *PhaseError) Unwrap() error { return e.Err }
