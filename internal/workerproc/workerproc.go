package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"submission-backend/internal/cleanup"
	"submission-backend/internal/shared/storage/object"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrNoStorageIDs indicates a message with nothing to delete.
type ErrNoStorageIDs struct {
	Meta MessageMeta
}

func (e ErrNoStorageIDs) Error() string { return "no storage ids in message" }

// ErrProcess indicates deletion failed after successful parsing. The
// message should be redelivered; deletes are idempotent so replaying
// already-removed objects is harmless.
type ErrProcess struct {
	SessionID string
	Failed    int
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process cleanup"
	}
	return fmt.Sprintf("process cleanup: %d deletes failed: %s", e.Failed, e.Err.Error())
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (cleanup.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return cleanup.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := cleanup.DecodeMessage([]byte(body))
	if err != nil {
		return cleanup.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if len(msg.StorageIDs) == 0 {
		return msg, meta, ErrNoStorageIDs{Meta: meta}
	}
	return msg, meta, nil
}

// HandleMessage parses a cleanup payload and deletes every referenced
// storage object. It keeps going past individual failures and reports
// them together so the whole batch is redelivered.
func HandleMessage(ctx context.Context, store object.ObjectStore, body string) error {
	if store == nil {
		return errors.New("object store not configured")
	}

	msg, _, err := ParseMessage(body)
	if err != nil {
		return err
	}

	var failed int
	var lastErr error
	for _, storageID := range msg.StorageIDs {
		if err := store.Delete(ctx, storageID); err != nil {
			failed++
			lastErr = err
		}
	}
	if failed > 0 {
		return ErrProcess{SessionID: msg.SessionID, Failed: failed, Err: lastErr}
	}
	return nil
}
