package submissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"submission-backend/internal/queues"
	"submission-backend/internal/shared/metrics"
	"submission-backend/internal/shared/storage/object"
	"submission-backend/internal/shared/telemetry"
	"submission-backend/internal/uploads"
)

// Phase names, in execution order.
const (
	PhaseUpload   = "upload"
	PhaseCommit   = "parent-commit"
	PhaseLink     = "link"
	PhaseFinalize = "finalize"
)

// Uploader runs one file transfer to terminal state. Satisfied by
// uploads.Orchestrator.
type Uploader interface {
	Run(ctx context.Context, queueID, sessionID string, op queues.UploadOperation) (queues.UploadOperation, error)
}

// GarbageCollector accepts storage references for asynchronous deletion
// after a queue is abandoned.
type GarbageCollector interface {
	EnqueueObjectDeletes(ctx context.Context, sessionID string, storageIDs []string) error
}

// Outcome is the caller-facing result of one submission run.
type Outcome struct {
	QueueID      string
	SubmissionID string
	Status       queues.Status
	Retryable    bool
	SlotErrors   map[string]string
	Error        string
}

// Service drives a deferred queue through its four phases: upload every
// file, commit the parent record, link artifacts, finalize. Each phase
// checkpoint is durable before the next phase starts, so a killed
// process resumes at the last completed boundary. Later-phase failures
// undo this run's effects before surfacing the original error.
type Service struct {
	Queues   *queues.Store
	Records  RecordStore
	Objects  object.ObjectStore
	Uploader Uploader
	GC       GarbageCollector

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewService constructs a Service.
func NewService(qs *queues.Store, records RecordStore, objects object.ObjectStore, uploader Uploader) *Service {
	return &Service{
		Queues:   qs,
		Records:  records,
		Objects:  objects,
		Uploader: uploader,
		inFlight: make(map[string]bool),
	}
}

// Get returns a submission by ID for the owning session.
func (s *Service) Get(ctx context.Context, sessionID, id string) (Submission, error) {
	sub, err := s.Records.GetParent(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if sub.SessionID != sessionID {
		return Submission{}, ErrNotFound
	}
	return sub, nil
}

// Submit runs the queue to completion or to failed with compensation
// applied. Exactly one run per queue executes at a time; a concurrent
// call observes ErrAlreadySubmitting.
func (s *Service) Submit(ctx context.Context, sessionID, queueID string) (Outcome, error) {
	q, err := s.Queues.Get(ctx, queueID)
	if err != nil {
		return Outcome{}, err
	}
	if q.SessionID != sessionID {
		return Outcome{}, queues.ErrNotFound
	}

	if !s.acquire(queueID) {
		return Outcome{}, ErrAlreadySubmitting
	}
	defer s.release(queueID)

	// A durable submitting status without a process-local lock means a
	// previous run died mid-flight; resume it instead of rejecting.
	if q.Status != queues.StatusSubmitting {
		if err := q.Transition(queues.StatusSubmitting); err != nil {
			return Outcome{}, err
		}
	}
	if err := s.Queues.Save(ctx, q); err != nil {
		return Outcome{}, err
	}

	metrics.IncSubmissionStarted()
	started := time.Now()
	telemetry.Info("submission.started", map[string]any{
		"queue_id":   q.ID,
		"session_id": sessionID,
		"operations": len(q.Operations),
		"resumed":    q.ParentRecordID != "",
	})

	outcome, runErr := s.run(ctx, q)
	metrics.ObserveSubmissionDurationMs(float64(time.Since(started).Milliseconds()))

	if runErr != nil {
		metrics.IncSubmissionFailed()
		if err := q.Transition(queues.StatusFailed); err == nil {
			if saveErr := s.Queues.Save(ctx, q); saveErr != nil {
				telemetry.Error("submission.save_failed_state", map[string]any{
					"queue_id": q.ID,
					"error":    saveErr.Error(),
				})
			}
		}
		outcome = s.failedOutcome(q, runErr)
		telemetry.Error("submission.failed", map[string]any{
			"queue_id":  q.ID,
			"error":     runErr.Error(),
			"retryable": outcome.Retryable,
		})
		return outcome, runErr
	}

	metrics.IncSubmissionCompleted()
	telemetry.Info("submission.completed", map[string]any{
		"queue_id":      q.ID,
		"submission_id": outcome.SubmissionID,
		"duration_ms":   time.Since(started).Milliseconds(),
	})
	return outcome, nil
}

// run executes the four phases against a queue already in submitting
// state. It returns the success outcome or the first phase error, with
// compensation already applied.
func (s *Service) run(ctx context.Context, q *queues.DeferredQueue) (Outcome, error) {
	uploadedThisRun, err := s.uploadPhase(ctx, q)
	if err != nil {
		// Nothing durable beyond partial uploads, which the next
		// attempt retries in place. No compensation.
		return Outcome{}, err
	}

	createdThisRun, err := s.commitPhase(ctx, q)
	if err != nil {
		s.compensate(ctx, q, uploadedThisRun, createdThisRun)
		return Outcome{}, &PhaseError{Phase: PhaseCommit, Retryable: true, Err: err}
	}

	if err := s.linkPhase(ctx, q); err != nil {
		s.compensate(ctx, q, uploadedThisRun, createdThisRun)
		return Outcome{}, &PhaseError{Phase: PhaseLink, Retryable: true, Err: err}
	}

	if err := s.Records.FinalizeParent(ctx, q.ParentRecordID); err != nil {
		s.compensate(ctx, q, uploadedThisRun, createdThisRun)
		return Outcome{}, &PhaseError{Phase: PhaseFinalize, Retryable: true, Err: fmt.Errorf("finalize parent record: %w", err)}
	}

	if err := q.Transition(queues.StatusCompleted); err != nil {
		return Outcome{}, err
	}
	if err := s.Queues.Purge(ctx, q); err != nil {
		// The record store already holds the submitted record; a purge
		// failure leaves only a stale local queue for the janitor.
		telemetry.Warn("submission.purge_failed", map[string]any{
			"queue_id": q.ID,
			"error":    err.Error(),
		})
	}

	return Outcome{
		QueueID:      q.ID,
		SubmissionID: q.ParentRecordID,
		Status:       queues.StatusCompleted,
	}, nil
}

// uploadPhase runs every operation not already completed, one at a
// time, and returns the storage IDs produced this run. It stops at the
// first terminal failure.
func (s *Service) uploadPhase(ctx context.Context, q *queues.DeferredQueue) ([]string, error) {
	var uploaded []string
	slotErrors := make(map[string]string)

	for _, slot := range sortedSlots(q.Operations) {
		op := q.Operations[slot]
		if op.Status == queues.OpCompleted {
			continue
		}
		if op.Status == queues.OpUploading {
			// Leftover from a killed run; the transfer restarts whole.
			op.Status = queues.OpPending
		}

		done, err := s.Uploader.Run(ctx, q.ID, q.SessionID, op)
		q.Operations[slot] = done
		if err != nil {
			slotErrors[slot] = err.Error()
			return uploaded, &PhaseError{
				Phase:      PhaseUpload,
				SlotErrors: slotErrors,
				Retryable:  uploads.Retryable(err),
				Err:        fmt.Errorf("upload %s: %w", slot, err),
			}
		}
		uploaded = append(uploaded, done.Result.StorageID)
	}
	return uploaded, nil
}

// commitPhase creates the parent record, or updates it when resuming a
// run that already created one. It reports whether this run created it.
func (s *Service) commitPhase(ctx context.Context, q *queues.DeferredQueue) (bool, error) {
	if q.ParentRecordID != "" {
		if err := s.Records.UpdateParent(ctx, q.ParentRecordID, q.FormSnapshot); err != nil {
			return false, fmt.Errorf("update parent record: %w", err)
		}
		return false, nil
	}

	sub := Submission{
		ID:        uuid.NewString(),
		SessionID: q.SessionID,
		Status:    StatusDraft,
		Form:      q.FormSnapshot,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Records.CreateParent(ctx, sub); err != nil {
		return false, fmt.Errorf("create parent record: %w", err)
	}

	q.ParentRecordID = sub.ID
	if err := s.Queues.Save(ctx, q); err != nil {
		return true, fmt.Errorf("checkpoint parent record id: %w", err)
	}
	return true, nil
}

// linkPhase attaches every completed upload to the parent record. Safe
// to replay: linking is an upsert per slot.
func (s *Service) linkPhase(ctx context.Context, q *queues.DeferredQueue) error {
	for _, slot := range sortedSlots(q.Operations) {
		op := q.Operations[slot]
		if op.Status != queues.OpCompleted || op.Result == nil {
			continue
		}
		artifact := Artifact{
			SubmissionID: q.ParentRecordID,
			Slot:         slot,
			StorageID:    op.Result.StorageID,
			FileName:     op.Result.FileName,
			FileType:     op.Result.FileType,
			FileSize:     op.Result.FileSize,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.Records.LinkArtifact(ctx, artifact); err != nil {
			return fmt.Errorf("link artifact %s: %w", slot, err)
		}
	}
	return nil
}

// compensate undoes this run's durable effects: storage objects
// uploaded in this run, and the parent record only if this run created
// it. A resumed run never deletes the parent a prior run committed.
// Compensation failures are logged and never mask the primary error.
func (s *Service) compensate(ctx context.Context, q *queues.DeferredQueue, uploadedThisRun []string, deleteParent bool) {
	metrics.IncCompensationRun()

	for _, storageID := range uploadedThisRun {
		if err := s.Objects.Delete(ctx, storageID); err != nil {
			metrics.IncCompensationFailed()
			telemetry.Error("submission.compensation_failed", map[string]any{
				"queue_id":   q.ID,
				"storage_id": storageID,
				"error":      err.Error(),
			})
			continue
		}
		// The object is gone; the operation must be re-run next attempt.
		for slot, op := range q.Operations {
			if op.Result != nil && op.Result.StorageID == storageID {
				op.Status = queues.OpPending
				op.Result = nil
				op.Progress = 0
				q.Operations[slot] = op
			}
		}
	}

	if deleteParent && q.ParentRecordID != "" {
		if err := s.Records.DeleteParent(ctx, q.ParentRecordID); err != nil {
			metrics.IncCompensationFailed()
			telemetry.Error("submission.compensation_failed", map[string]any{
				"queue_id":  q.ID,
				"parent_id": q.ParentRecordID,
				"error":     err.Error(),
			})
		} else {
			q.ParentRecordID = ""
		}
	}
}

// Cancel abandons a queue: its durable state is purged and any
// already-uploaded but unlinked objects are handed to the garbage
// collector.
func (s *Service) Cancel(ctx context.Context, sessionID, queueID string) error {
	q, err := s.Queues.Get(ctx, queueID)
	if err != nil {
		return err
	}
	if q.SessionID != sessionID {
		return queues.ErrNotFound
	}
	if !s.acquire(queueID) {
		return ErrAlreadySubmitting
	}
	defer s.release(queueID)

	var orphans []string
	for _, op := range q.Operations {
		if op.Status == queues.OpCompleted && op.Result != nil {
			orphans = append(orphans, op.Result.StorageID)
		}
	}
	if len(orphans) > 0 && s.GC != nil {
		if err := s.GC.EnqueueObjectDeletes(ctx, sessionID, orphans); err != nil {
			telemetry.Warn("submission.gc_enqueue_failed", map[string]any{
				"queue_id": q.ID,
				"orphans":  len(orphans),
				"error":    err.Error(),
			})
		}
	}

	if err := s.Queues.Purge(ctx, q); err != nil {
		return err
	}
	telemetry.Info("submission.cancelled", map[string]any{
		"queue_id": q.ID,
		"orphans":  len(orphans),
	})
	return nil
}

func (s *Service) failedOutcome(q *queues.DeferredQueue, runErr error) Outcome {
	out := Outcome{
		QueueID:   q.ID,
		Status:    queues.StatusFailed,
		Error:     runErr.Error(),
		Retryable: true,
	}
	var phaseErr *PhaseError
	if errors.As(runErr, &phaseErr) {
		out.Retryable = phaseErr.Retryable
		out.SlotErrors = phaseErr.SlotErrors
	}
	return out
}

func (s *Service) acquire(queueID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == nil {
		s.inFlight = make(map[string]bool)
	}
	if s.inFlight[queueID] {
		return false
	}
	s.inFlight[queueID] = true
	return true
}

func (s *Service) release(queueID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, queueID)
}

func sortedSlots(ops map[string]queues.UploadOperation) []string {
	slots := make([]string, 0, len(ops))
	for slot := range ops {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	return slots
}

// ErrorCodeFor maps a run error to its stable API code.
func ErrorCodeFor(err error) string {
	var phaseErr *PhaseError
	if !errors.As(err, &phaseErr) {
		return ErrorCodeInternal
	}
	switch phaseErr.Phase {
	case PhaseUpload:
		return ErrorCodeUpload
	case PhaseCommit:
		return ErrorCodeCommit
	case PhaseLink:
		return ErrorCodeLink
	case PhaseFinalize:
		return ErrorCodeFinalize
	}
	return ErrorCodeInternal
}
