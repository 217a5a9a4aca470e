package uploads

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"submission-backend/internal/queues"
	"submission-backend/internal/shared/metrics"
	"submission-backend/internal/shared/storage/object"
	"submission-backend/internal/shared/telemetry"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultHeadTimeout = 10 * time.Second
	defaultGetTimeout  = 30 * time.Second
	defaultPutTimeout  = 60 * time.Second

	// Progress checkpoints within one attempt. Monotonic inside the
	// attempt; each retry resets to progressStarted.
	progressStarted = 5
	progressChecked = 15
	progressFetched = 40
	progressIssued  = 50
)

// Journal checkpoints an operation's durable state after every step.
type Journal interface {
	SaveOperation(ctx context.Context, queueID string, op queues.UploadOperation) error
}

// Orchestrator transfers a single file to remote storage and records the
// resulting storage reference. It resolves transient-vs-permanent errors
// internally and returns one terminal error per operation.
type Orchestrator struct {
	Issuer  object.UploadIssuer
	Journal Journal
	Probe   Prober
	Client  *http.Client

	MaxAttempts int
	BaseDelay   time.Duration
	HeadTimeout time.Duration
	GetTimeout  time.Duration
	PutTimeout  time.Duration

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Run executes the upload for one operation. The operation must be
// pending or previously failed. The returned operation reflects the
// terminal state; it has also been journaled.
func (o *Orchestrator) Run(ctx context.Context, queueID, sessionID string, op queues.UploadOperation) (queues.UploadOperation, error) {
	if op.Status != queues.OpPending && op.Status != queues.OpFailed {
		return op, fmt.Errorf("operation %s is %s, not runnable", op.Slot, op.Status)
	}

	if !o.prober().Reachable(ctx) {
		op.MarkFailed(ErrOffline)
		if err := o.journal(ctx, queueID, op); err != nil {
			return op, err
		}
		return op, ErrOffline
	}

	maxAttempts := o.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncUploadRetry()
			telemetry.Info("upload.retry", map[string]any{
				"queue_id": queueID,
				"slot":     op.Slot,
				"attempt":  attempt,
				"error":    lastErr.Error(),
			})
			if err := o.backoff(ctx, attempt-1); err != nil {
				lastErr = err
				break
			}
			if !o.prober().Reachable(ctx) {
				lastErr = ErrOffline
				break
			}
		}

		op.MarkUploading(progressStarted)
		if err := o.journal(ctx, queueID, op); err != nil {
			return op, err
		}

		result, err := o.attempt(ctx, queueID, sessionID, &op)
		if err == nil {
			op.MarkCompleted(result)
			if err := o.journal(ctx, queueID, op); err != nil {
				return op, err
			}
			telemetry.Info("upload.completed", map[string]any{
				"queue_id":   queueID,
				"slot":       op.Slot,
				"storage_id": result.StorageID,
				"size":       result.FileSize,
				"attempts":   attempt,
			})
			return op, nil
		}

		lastErr = err
		if !transient(err) {
			break
		}
	}

	op.MarkFailed(lastErr)
	if err := o.journal(ctx, queueID, op); err != nil {
		return op, err
	}
	telemetry.Error("upload.failed", map[string]any{
		"queue_id":  queueID,
		"slot":      op.Slot,
		"error":     lastErr.Error(),
		"retryable": Retryable(lastErr),
	})
	return op, lastErr
}

// attempt performs one full transfer: source check, fetch, destination
// issuance, PUT. Progress is checkpointed after every step.
func (o *Orchestrator) attempt(ctx context.Context, queueID, sessionID string, op *queues.UploadOperation) (queues.UploadResult, error) {
	if err := o.checkSource(ctx, op.File.URI); err != nil {
		return queues.UploadResult{}, err
	}
	op.SetProgress(progressChecked)
	if err := o.journal(ctx, queueID, *op); err != nil {
		return queues.UploadResult{}, err
	}

	body, err := o.fetchSource(ctx, op.File.URI)
	if err != nil {
		return queues.UploadResult{}, err
	}
	op.SetProgress(progressFetched)
	if err := o.journal(ctx, queueID, *op); err != nil {
		return queues.UploadResult{}, err
	}

	issued, err := o.Issuer.IssueUpload(ctx, sessionID, op.File.Name, op.File.MimeType)
	if err != nil {
		return queues.UploadResult{}, fmt.Errorf("issue upload destination: %w", err)
	}
	op.SetProgress(progressIssued)
	if err := o.journal(ctx, queueID, *op); err != nil {
		return queues.UploadResult{}, err
	}

	if err := o.putBytes(ctx, issued.URL, op.File.MimeType, body); err != nil {
		return queues.UploadResult{}, err
	}

	return queues.UploadResult{
		StorageID: issued.StorageID,
		FileName:  op.File.Name,
		FileType:  op.File.MimeType,
		FileSize:  int64(len(body)),
	}, nil
}

// checkSource verifies the source file is still reachable. A missing
// source is permanent: the file was deleted or moved and retrying
// cannot help.
func (o *Orchestrator) checkSource(ctx context.Context, uri string) error {
	timeout := o.HeadTimeout
	if timeout <= 0 {
		timeout = defaultHeadTimeout
	}
	headCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(headCtx, http.MethodHead, uri, nil)
	if err != nil {
		return permanentError{fmt.Errorf("source uri invalid: %w", err)}
	}
	resp, err := o.client().Do(req)
	if err != nil {
		return fmt.Errorf("check source: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return fmt.Errorf("check source: %w", ErrSourceGone)
	}
	if resp.StatusCode >= 400 {
		return statusError{step: "check source", status: resp.StatusCode}
	}
	return nil
}

func (o *Orchestrator) fetchSource(ctx context.Context, uri string) ([]byte, error) {
	timeout := o.GetTimeout
	if timeout <= 0 {
		timeout = defaultGetTimeout
	}
	getCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(getCtx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, permanentError{fmt.Errorf("source uri invalid: %w", err)}
	}
	resp, err := o.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, fmt.Errorf("fetch source: %w", ErrSourceGone)
	}
	if resp.StatusCode >= 400 {
		return nil, statusError{step: "fetch source", status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read source body: %w", err)
	}
	return body, nil
}

func (o *Orchestrator) putBytes(ctx context.Context, url, contentType string, body []byte) error {
	timeout := o.PutTimeout
	if timeout <= 0 {
		timeout = defaultPutTimeout
	}
	putCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(putCtx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return permanentError{fmt.Errorf("upload url invalid: %w", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.ContentLength = int64(len(body))

	resp, err := o.client().Do(req)
	if err != nil {
		return fmt.Errorf("put bytes: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return statusError{step: "put bytes", status: resp.StatusCode}
	}
	return nil
}

// backoff waits 1s, 2s, 4s for retries 1, 2, 3.
func (o *Orchestrator) backoff(ctx context.Context, retry int) error {
	base := o.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	delay := base << (retry - 1)
	return o.sleeper()(ctx, delay)
}

func (o *Orchestrator) journal(ctx context.Context, queueID string, op queues.UploadOperation) error {
	if o.Journal == nil {
		return nil
	}
	if err := o.Journal.SaveOperation(ctx, queueID, op); err != nil {
		return fmt.Errorf("checkpoint operation %s: %w", op.Slot, err)
	}
	return nil
}

func (o *Orchestrator) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return http.DefaultClient
}

func (o *Orchestrator) prober() Prober {
	if o.Probe != nil {
		return o.Probe
	}
	return AlwaysOnline{}
}

func (o *Orchestrator) sleeper() func(ctx context.Context, d time.Duration) error {
	if o.sleep != nil {
		return o.sleep
	}
	return func(ctx context.Context, d time.Duration) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
