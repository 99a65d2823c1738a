// Package syncjob exports versioned snapshots of the content document to the
// blob store and mirror paths, and imports them back.
package syncjob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitecontent/internal/blob"
	"sitecontent/internal/infra/persistence/jsonfile"
	"sitecontent/pkg/domain"
)

// Status describes the lifecycle stage of a sync job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ExportPrefix is the blob key prefix of export artifacts.
const ExportPrefix = "exports/"

// MirrorResult reports the outcome of one mirror write.
type MirrorResult struct {
	Path  string `json:"path"`
	Error string `json:"error,omitempty"`
}

// Job tracks one export request.
type Job struct {
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	Error       string         `json:"error,omitempty"`
	Revision    int64          `json:"revision"`
	Artifact    *blob.Info     `json:"artifact,omitempty"`
	Mirrors     []MirrorResult `json:"mirrors,omitempty"`
	RequestedBy string         `json:"requestedBy,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

func (j Job) copy() Job {
	dup := j
	dup.Mirrors = append([]MirrorResult(nil), j.Mirrors...)
	if j.Artifact != nil {
		a := *j.Artifact
		dup.Artifact = &a
	}
	return dup
}

// Source is the content store being exported and restored.
type Source interface {
	ExportState() domain.Document
	Restore(ctx context.Context, doc domain.Document) error
}

// ErrQueueFull is returned when the job queue cannot accept more work.
var ErrQueueFull = errors.New("sync queue full")

// Option configures a Worker.
type Option func(*Worker)

// WithMirrors sets file paths that receive a copy of every export.
func WithMirrors(paths ...string) Option {
	return func(w *Worker) {
		for _, p := range paths {
			if strings.TrimSpace(p) != "" {
				w.mirrors = append(w.mirrors, p)
			}
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// DefaultRetention is how long finished jobs stay visible through Get.
const DefaultRetention = 24 * time.Hour

// WithRetention sets how long finished jobs are kept. Queued and running
// jobs are never evicted.
func WithRetention(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.retention = d
		}
	}
}

// WithQueueSize sets the number of jobs that may wait for the worker.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// Worker runs exports on a single goroutine.
type Worker struct {
	source    Source
	blobs     blob.Store
	mirrors   []string
	logger    *slog.Logger
	now       func() time.Time
	queueSize int
	retention time.Duration

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs a worker exporting source into blobs.
func NewWorker(source Source, blobs blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		source:    source,
		blobs:     blobs,
		logger:    slog.Default(),
		now:       time.Now,
		queueSize: 16,
		retention: DefaultRetention,
		jobs:      make(map[string]*Job),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan string, w.queueSize)
	return w
}

// Start begins processing queued jobs.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the current job.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(w.ctx, id)
		}
	}
}

// Enqueue schedules an export and returns the queued job.
func (w *Worker) Enqueue(_ context.Context, requestedBy string) (Job, error) {
	job := w.register(requestedBy)
	select {
	case w.queue <- job.ID:
	default:
		w.fail(job.ID, ErrQueueFull.Error())
		return Job{}, ErrQueueFull
	}
	return job, nil
}

// RunOnce performs an export synchronously and returns the finished job.
func (w *Worker) RunOnce(ctx context.Context, requestedBy string) (Job, error) {
	job := w.register(requestedBy)
	w.process(ctx, job.ID)
	done, _ := w.Get(job.ID)
	if done.Status == StatusFailed {
		return done, errors.New(done.Error)
	}
	return done, nil
}

// Get returns a snapshot of a job.
func (w *Worker) Get(id string) (Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	job, ok := w.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.copy(), true
}

// List returns the export artifacts held in the blob store.
func (w *Worker) List(ctx context.Context) ([]blob.Info, error) {
	return w.blobs.List(ctx, ExportPrefix)
}

// Import loads an export artifact and replaces the store state with it.
// The artifact is parsed and checked before anything is replaced.
func (w *Worker) Import(ctx context.Context, key string) (int64, error) {
	if !strings.HasPrefix(key, ExportPrefix) || !strings.HasSuffix(key, ".json") {
		return 0, domain.ValidationError{Field: "key", Reason: "must name an export artifact"}
	}
	_, rc, err := w.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return 0, domain.ValidationError{Field: "key", Reason: "export not found"}
		}
		return 0, fmt.Errorf("read export %s: %w", key, err)
	}
	defer rc.Close()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return 0, fmt.Errorf("read export %s: %w", key, err)
	}
	doc, err := Decode(payload)
	if err != nil {
		return 0, err
	}
	if err := w.source.Restore(ctx, doc); err != nil {
		return 0, fmt.Errorf("restore %s: %w", key, err)
	}
	rev := w.source.ExportState().Revision
	w.logger.Info("export imported", "key", key, "revision", rev)
	return rev, nil
}

// Decode parses an exported document. It must be a JSON object holding at
// least one known collection array.
func Decode(payload []byte) (domain.Document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return domain.Document{}, domain.ValidationError{Field: "key", Reason: "export is not a JSON object"}
	}
	var doc domain.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return domain.Document{}, domain.ValidationError{Field: "key", Reason: err.Error()}
	}
	if len(doc.Collections) == 0 {
		return domain.Document{}, domain.ValidationError{Field: "key", Reason: "export holds no collections"}
	}
	doc.Repair()
	return doc, nil
}

func (w *Worker) register(requestedBy string) Job {
	now := w.now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		Status:      StatusQueued,
		RequestedBy: requestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	w.mu.Lock()
	w.evictLocked(now)
	w.jobs[job.ID] = job
	snapshot := job.copy()
	w.mu.Unlock()
	return snapshot
}

// evictLocked drops finished jobs older than the retention period.
func (w *Worker) evictLocked(now time.Time) {
	cutoff := now.Add(-w.retention)
	for id, job := range w.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(w.jobs, id)
		}
	}
}

func (w *Worker) process(ctx context.Context, id string) {
	w.update(id, func(j *Job) { j.Status = StatusRunning })

	doc := w.source.ExportState()
	payload, err := jsonfile.Encode(doc)
	if err != nil {
		w.fail(id, fmt.Sprintf("encode document: %v", err))
		return
	}
	key := fmt.Sprintf("%sdatabase-r%d-%d.json", ExportPrefix, doc.Revision, w.now().UnixMilli())
	info, err := w.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"revision": fmt.Sprint(doc.Revision), "job": id},
	})
	if err != nil {
		w.fail(id, fmt.Sprintf("store export: %v", err))
		return
	}

	results := make([]MirrorResult, 0, len(w.mirrors))
	failed := 0
	for _, target := range w.mirrors {
		res := MirrorResult{Path: target}
		if err := jsonfile.WriteFileAtomic(target, payload, 0o644); err != nil {
			res.Error = err.Error()
			failed++
			w.logger.Warn("mirror write failed", "path", target, "error", err)
		}
		results = append(results, res)
	}

	now := w.now().UTC()
	w.update(id, func(j *Job) {
		j.Revision = doc.Revision
		j.Artifact = &info
		j.Mirrors = results
		j.CompletedAt = &now
		if failed > 0 {
			j.Status = StatusFailed
			j.Error = fmt.Sprintf("%d of %d mirrors failed", failed, len(w.mirrors))
			return
		}
		j.Status = StatusSucceeded
	})
	w.logger.Info("export finished", "job", id, "key", info.Key, "revision", doc.Revision, "mirrors", len(results), "failedMirrors", failed)
}

func (w *Worker) update(id string, fn func(*Job)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if job, ok := w.jobs[id]; ok {
		fn(job)
		job.UpdatedAt = w.now().UTC()
	}
}

func (w *Worker) fail(id, reason string) {
	now := w.now().UTC()
	w.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = reason
		j.CompletedAt = &now
	})
	w.logger.Error("export failed", "job", id, "error", reason)
}
