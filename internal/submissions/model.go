package submissions

import (
	"encoding/json"
	"time"
)

const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
)

// Submission is the parent record a queue's four-phase run commits.
type Submission struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId"`
	Status      string          `json:"status"`
	Form        json.RawMessage `json:"form"`
	Artifacts   []Artifact      `json:"artifacts,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	SubmittedAt *time.Time      `json:"submittedAt,omitempty"`
}

// Artifact is one uploaded file linked to a submission, keyed by its
// document slot. Linking the same slot twice overwrites rather than
// duplicates.
type Artifact struct {
	SubmissionID string    `json:"submissionId"`
	Slot         string    `json:"slot"`
	StorageID    string    `json:"storageId"`
	FileName     string    `json:"fileName"`
	FileType     string    `json:"fileType"`
	FileSize     int64     `json:"fileSize"`
	CreatedAt    time.Time `json:"createdAt"`
}
