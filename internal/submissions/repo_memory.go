package submissions

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryRecordStore stores submissions in memory and is safe for
// concurrent use.
type MemoryRecordStore struct {
	mu        sync.RWMutex
	byID      map[string]Submission
	artifacts map[string]map[string]Artifact
}

// NewMemoryRecordStore constructs a MemoryRecordStore.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		byID:      make(map[string]Submission),
		artifacts: make(map[string]map[string]Artifact),
	}
}

// CreateParent stores a new submission.
func (r *MemoryRecordStore) CreateParent(ctx context.Context, sub Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[sub.ID] = sub
	return nil
}

// UpdateParent replaces the form snapshot of an existing submission.
func (r *MemoryRecordStore) UpdateParent(ctx context.Context, id string, form json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	sub.Form = form
	sub.UpdatedAt = time.Now().UTC()
	r.byID[id] = sub
	return nil
}

// LinkArtifact attaches an artifact to a submission. Re-linking a slot
// overwrites the previous reference.
func (r *MemoryRecordStore) LinkArtifact(ctx context.Context, artifact Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[artifact.SubmissionID]; !ok {
		return ErrNotFound
	}
	slots, ok := r.artifacts[artifact.SubmissionID]
	if !ok {
		slots = make(map[string]Artifact)
		r.artifacts[artifact.SubmissionID] = slots
	}
	slots[artifact.Slot] = artifact
	return nil
}

// FinalizeParent moves a submission from draft to submitted.
func (r *MemoryRecordStore) FinalizeParent(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	sub.Status = StatusSubmitted
	sub.SubmittedAt = &now
	sub.UpdatedAt = now
	r.byID[id] = sub
	return nil
}

// DeleteParent removes a submission and its artifact links.
func (r *MemoryRecordStore) DeleteParent(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	delete(r.artifacts, id)
	return nil
}

// GetParent returns a submission with its artifacts.
func (r *MemoryRecordStore) GetParent(ctx context.Context, id string) (Submission, error) {
	if err := ctx.Err(); err != nil {
		return Submission{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.byID[id]
	if !ok {
		return Submission{}, ErrNotFound
	}
	for _, artifact := range r.artifacts[id] {
		sub.Artifacts = append(sub.Artifacts, artifact)
	}
	sort.Slice(sub.Artifacts, func(i, j int) bool {
		return sub.Artifacts[i].Slot < sub.Artifacts[j].Slot
	})
	return sub, nil
}
