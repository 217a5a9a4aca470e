package queues

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a deferred queue.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusSubmitting Status = "submitting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// OperationStatus is the lifecycle state of a single upload operation.
type OperationStatus string

const (
	OpPending   OperationStatus = "pending"
	OpUploading OperationStatus = "uploading"
	OpCompleted OperationStatus = "completed"
	OpFailed    OperationStatus = "failed"
)

// legalTransitions enumerates the allowed queue status moves. A failed
// queue may re-enter submitting for a user-driven retry; completed is
// terminal.
var legalTransitions = map[Status][]Status{
	StatusDraft:      {StatusSubmitting},
	StatusSubmitting: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusSubmitting},
	StatusCompleted:  {},
}

// FileDescriptor identifies the source bytes for one upload operation.
type FileDescriptor struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// UploadResult records where an uploaded file landed.
type UploadResult struct {
	StorageID string `json:"storageId"`
	FileName  string `json:"fileName"`
	FileType  string `json:"fileType"`
	FileSize  int64  `json:"fileSize"`
}

// UploadOperation is one file transfer, keyed by its logical document slot.
type UploadOperation struct {
	ID        string          `json:"id"`
	Slot      string          `json:"slot"`
	File      FileDescriptor  `json:"file"`
	Status    OperationStatus `json:"status"`
	Progress  int             `json:"progress"`
	Error     string          `json:"error,omitempty"`
	Result    *UploadResult   `json:"result,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// DeferredQueue is the durable, resumable record of a submission attempt.
type DeferredQueue struct {
	ID             string                     `json:"id"`
	SessionID      string                     `json:"sessionId"`
	FormSnapshot   json.RawMessage            `json:"formSnapshot"`
	Operations     map[string]UploadOperation `json:"operations"`
	Status         Status                     `json:"status"`
	CreatedAt      time.Time                  `json:"createdAt"`
	ExpiresAt      time.Time                  `json:"expiresAt"`
	ParentRecordID string                     `json:"parentRecordId,omitempty"`
}

// Transition moves the queue to a new status, rejecting illegal moves.
func (q *DeferredQueue) Transition(to Status) error {
	for _, allowed := range legalTransitions[q.Status] {
		if allowed == to {
			q.Status = to
			return nil
		}
	}
	return &IllegalTransitionError{From: q.Status, To: to}
}

// Active reports whether the queue still owns its session's draft work:
// it is not completed and has not passed its TTL.
func (q *DeferredQueue) Active(now time.Time) bool {
	if q.Status == StatusCompleted {
		return false
	}
	return now.Before(q.ExpiresAt)
}

// MarkUploading flags an operation as in flight with the given progress.
func (op *UploadOperation) MarkUploading(progress int) {
	op.Status = OpUploading
	op.Progress = clampProgress(progress)
	op.Error = ""
	op.UpdatedAt = time.Now().UTC()
}

// MarkCompleted records a successful transfer. A completed operation
// always carries its result.
func (op *UploadOperation) MarkCompleted(result UploadResult) {
	op.Status = OpCompleted
	op.Progress = 100
	op.Error = ""
	op.Result = &result
	op.UpdatedAt = time.Now().UTC()
}

// MarkFailed records a terminal failure. A failed operation always
// carries its error.
func (op *UploadOperation) MarkFailed(err error) {
	op.Status = OpFailed
	op.Error = err.Error()
	op.UpdatedAt = time.Now().UTC()
}

// SetProgress updates progress without changing status.
func (op *UploadOperation) SetProgress(progress int) {
	op.Progress = clampProgress(progress)
	op.UpdatedAt = time.Now().UTC()
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
