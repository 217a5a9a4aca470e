package cleanup

import (
	"context"
	"sync"
	"time"
)

// Enqueuer hands orphaned storage objects to the cleanup queue. It
// satisfies the submission service's garbage collector dependency.
type Enqueuer struct {
	Queue  Client
	Reason string
}

// EnqueueObjectDeletes sends one cleanup job covering all the storage IDs.
func (e *Enqueuer) EnqueueObjectDeletes(ctx context.Context, sessionID string, storageIDs []string) error {
	if len(storageIDs) == 0 {
		return nil
	}
	reason := e.Reason
	if reason == "" {
		reason = "queue_abandoned"
	}
	return e.Queue.Send(ctx, Message{
		SessionID:  sessionID,
		StorageIDs: storageIDs,
		Reason:     reason,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    1,
	})
}

// MemoryClient collects messages in memory for local development and
// tests.
type MemoryClient struct {
	mu       sync.Mutex
	messages []Message
}

// Send records the message.
func (c *MemoryClient) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (c *MemoryClient) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

var _ Client = (*MemoryClient)(nil)
