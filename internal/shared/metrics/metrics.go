package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	submissionStartedTotal   atomic.Uint64
	submissionCompletedTotal atomic.Uint64
	submissionFailedTotal    atomic.Uint64
	uploadRetriesTotal       atomic.Uint64
	compensationRunTotal     atomic.Uint64
	compensationFailedTotal  atomic.Uint64
	bookingConfirmedTotal    atomic.Uint64
	bookingConflictTotal     atomic.Uint64
	cleanupJobsReceivedTotal  atomic.Uint64
	cleanupJobsCompletedTotal atomic.Uint64
	cleanupJobsFailedTotal    atomic.Uint64

	submissionDuration = newHistogram([]float64{250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

// IncSubmissionStarted increments the started counter.
func IncSubmissionStarted() {
	submissionStartedTotal.Add(1)
}

// IncSubmissionCompleted increments the completed counter.
func IncSubmissionCompleted() {
	submissionCompletedTotal.Add(1)
}

// IncSubmissionFailed increments the failed counter.
func IncSubmissionFailed() {
	submissionFailedTotal.Add(1)
}

// IncUploadRetry increments the upload retry counter.
func IncUploadRetry() {
	uploadRetriesTotal.Add(1)
}

// IncCompensationRun increments the compensation counter.
func IncCompensationRun() {
	compensationRunTotal.Add(1)
}

// IncCompensationFailed increments the failed compensation counter.
func IncCompensationFailed() {
	compensationFailedTotal.Add(1)
}

// IncBookingConfirmed increments the confirmed booking counter.
func IncBookingConfirmed() {
	bookingConfirmedTotal.Add(1)
}

// IncBookingConflict increments the booking conflict counter.
func IncBookingConflict() {
	bookingConflictTotal.Add(1)
}

// IncCleanupJobsReceived increments the cleanup jobs received counter.
func IncCleanupJobsReceived() {
	cleanupJobsReceivedTotal.Add(1)
}

// IncCleanupJobsCompleted increments the cleanup jobs completed counter.
func IncCleanupJobsCompleted() {
	cleanupJobsCompletedTotal.Add(1)
}

// IncCleanupJobsFailed increments the cleanup jobs failed counter.
func IncCleanupJobsFailed() {
	cleanupJobsFailedTotal.Add(1)
}

// ObserveSubmissionDurationMs records a submission run duration in milliseconds.
func ObserveSubmissionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	submissionDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "submission_started_total", "Total submission runs started", submissionStartedTotal.Load())
	writeCounter(&buf, "submission_completed_total", "Total submission runs completed", submissionCompletedTotal.Load())
	writeCounter(&buf, "submission_failed_total", "Total submission runs failed", submissionFailedTotal.Load())
	writeCounter(&buf, "upload_retries_total", "Total upload retry attempts", uploadRetriesTotal.Load())
	writeCounter(&buf, "compensation_run_total", "Total compensating actions executed", compensationRunTotal.Load())
	writeCounter(&buf, "compensation_failed_total", "Total compensating actions that failed", compensationFailedTotal.Load())
	writeCounter(&buf, "booking_confirmed_total", "Total slot bookings confirmed", bookingConfirmedTotal.Load())
	writeCounter(&buf, "booking_conflict_total", "Total slot bookings rejected on capacity or duplicate", bookingConflictTotal.Load())
	writeCounter(&buf, "cleanup_jobs_received_total", "Total cleanup jobs received", cleanupJobsReceivedTotal.Load())
	writeCounter(&buf, "cleanup_jobs_completed_total", "Total cleanup jobs completed", cleanupJobsCompletedTotal.Load())
	writeCounter(&buf, "cleanup_jobs_failed_total", "Total cleanup jobs failed", cleanupJobsFailedTotal.Load())
	writeHistogram(&buf, "submission_duration_ms", "Submission run duration in milliseconds", submissionDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
