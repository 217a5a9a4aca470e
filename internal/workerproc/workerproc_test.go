package workerproc

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"submission-backend/internal/cleanup"
)

type stubStore struct {
	mu      sync.Mutex
	deleted []string
	fail    map[string]error
}

func (s *stubStore) SaveWithKey(context.Context, string, string, io.Reader) (int64, error) {
	return 0, errors.New("not implemented")
}

func (s *stubStore) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (s *stubStore) Delete(_ context.Context, storageKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[storageKey]; err != nil {
		return err
	}
	s.deleted = append(s.deleted, storageKey)
	return nil
}

func encode(t *testing.T, msg cleanup.Message) string {
	t.Helper()
	payload, err := cleanup.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	return string(payload)
}

func TestHandleMessageDeletesAllObjects(t *testing.T) {
	store := &stubStore{}
	body := encode(t, cleanup.Message{
		SessionID:  "sess-1",
		StorageIDs: []string{"obj-1", "obj-2"},
		Version:    1,
	})

	if err := HandleMessage(context.Background(), store, body); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(store.deleted) != 2 {
		t.Fatalf("deleted %d objects, want 2", len(store.deleted))
	}
}

func TestHandleMessageReportsPartialFailure(t *testing.T) {
	store := &stubStore{fail: map[string]error{"obj-2": errors.New("access denied")}}
	body := encode(t, cleanup.Message{
		SessionID:  "sess-1",
		StorageIDs: []string{"obj-1", "obj-2", "obj-3"},
		Version:    1,
	})

	err := HandleMessage(context.Background(), store, body)
	var procErr ErrProcess
	if !errors.As(err, &procErr) {
		t.Fatalf("err = %v, want ErrProcess", err)
	}
	if procErr.Failed != 1 {
		t.Errorf("failed = %d, want 1", procErr.Failed)
	}
	// The failure did not stop the rest of the batch.
	if len(store.deleted) != 2 {
		t.Errorf("deleted %d objects, want 2", len(store.deleted))
	}
}

func TestParseMessageRejectsBadPayloads(t *testing.T) {
	if _, _, err := ParseMessage(""); err == nil {
		t.Error("empty body accepted")
	}
	if _, _, err := ParseMessage("{not json"); err == nil {
		t.Error("malformed body accepted")
	}
	if _, _, err := ParseMessage(`{"sessionId":"s","storageIds":[]}`); err == nil {
		t.Error("empty storage id list accepted")
	}
}

func TestComputeMeta(t *testing.T) {
	meta := ComputeMeta("")
	if meta.BodyLen != 0 || meta.BodySHA != "" {
		t.Errorf("empty body meta = %+v", meta)
	}
	meta = ComputeMeta("payload")
	if meta.BodyLen != 7 || meta.BodySHA == "" {
		t.Errorf("meta = %+v", meta)
	}
}
