package submissions

import (
	"context"
	"encoding/json"
)

// RecordStore defines the parent-record mutations the submission run
// drives. Each call is a single atomic write; there is no multi-call
// transaction, which is why the run sequences phases and compensates.
type RecordStore interface {
	CreateParent(ctx context.Context, sub Submission) error
	UpdateParent(ctx context.Context, id string, form json.RawMessage) error
	LinkArtifact(ctx context.Context, artifact Artifact) error
	FinalizeParent(ctx context.Context, id string) error
	DeleteParent(ctx context.Context, id string) error
	GetParent(ctx context.Context, id string) (Submission, error)
}
