package object

import (
	"context"
	"io"
	"time"
)

// ObjectStore defines the contract for saving, retrieving, and deleting
// binary objects. Delete must be idempotent: removing a missing object
// is not an error, so compensation and garbage collection can be retried.
type ObjectStore interface {
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, storageKey string) error
}

// IssuedUpload is a one-time destination for a single file transfer.
// StorageID doubles as the storage key the object lands under.
type IssuedUpload struct {
	URL       string
	StorageID string
	ExpiresAt time.Time
}

// UploadIssuer hands out one-time upload destinations.
type UploadIssuer interface {
	IssueUpload(ctx context.Context, sessionID, fileName, contentType string) (IssuedUpload, error)
}
