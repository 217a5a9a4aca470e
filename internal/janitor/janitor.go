package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"submission-backend/internal/queues"
	"submission-backend/internal/shared/telemetry"
)

// GarbageCollector accepts storage references for asynchronous deletion.
type GarbageCollector interface {
	EnqueueObjectDeletes(ctx context.Context, sessionID string, storageIDs []string) error
}

// Janitor purges deferred queues past their TTL on a cron schedule and
// hands their uploaded-but-unlinked objects to the garbage collector.
type Janitor struct {
	Queues *queues.Store
	GC     GarbageCollector
	Spec   string

	cron *cron.Cron
	now  func() time.Time
}

// New constructs a Janitor with the given cron spec.
func New(store *queues.Store, gc GarbageCollector, spec string) *Janitor {
	if spec == "" {
		spec = "@every 15m"
	}
	return &Janitor{
		Queues: store,
		GC:     gc,
		Spec:   spec,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start schedules the sweep and begins running it.
func (j *Janitor) Start() error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := j.Sweep(ctx); err != nil {
			telemetry.Error("janitor.sweep_failed", map[string]any{"error": err.Error()})
		}
	}); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// Sweep purges every expired queue and returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	expired, err := j.Queues.ListExpired(ctx, j.now())
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, q := range expired {
		var orphans []string
		for _, op := range q.Operations {
			if op.Status == queues.OpCompleted && op.Result != nil {
				orphans = append(orphans, op.Result.StorageID)
			}
		}
		if len(orphans) > 0 && j.GC != nil {
			if err := j.GC.EnqueueObjectDeletes(ctx, q.SessionID, orphans); err != nil {
				telemetry.Warn("janitor.gc_enqueue_failed", map[string]any{
					"queue_id": q.ID,
					"orphans":  len(orphans),
					"error":    err.Error(),
				})
			}
		}
		if err := j.Queues.Purge(ctx, q); err != nil {
			telemetry.Error("janitor.purge_failed", map[string]any{
				"queue_id": q.ID,
				"error":    err.Error(),
			})
			continue
		}
		purged++
		telemetry.Info("janitor.queue_purged", map[string]any{
			"queue_id": q.ID,
			"orphans":  len(orphans),
		})
	}
	return purged, nil
}
