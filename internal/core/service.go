// Package core implements the resource operations shared by every content
// collection on top of a transactional content store.
package core

import (
	"context"
	"log/slog"
	"time"

	"sitecontent/internal/blob"
	"sitecontent/internal/infra/persistence/memory"
	"sitecontent/pkg/domain"
)

// MetricsRecorder observes the outcome of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics installs a metrics recorder.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithBlobStore enables cleanup of uploaded images that records stop referencing.
func WithBlobStore(store blob.Store) ServiceOption {
	return func(s *Service) { s.blobs = store }
}

// WithBlobRemovedHook registers a callback invoked after an uploaded image is
// deleted, e.g. to invalidate resolver caches.
func WithBlobRemovedHook(fn func(key string)) ServiceOption {
	return func(s *Service) { s.onBlobRemoved = fn }
}

// Service exposes transactional CRUD operations over the content collections.
type Service struct {
	store         PersistentStore
	blobs         blob.Store
	logger        *slog.Logger
	metrics       MetricsRecorder
	onBlobRemoved func(key string)
	started       time.Time
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		logger:  slog.Default(),
		metrics: noopMetrics{},
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService is a convenience constructor backed by the memory store.
func NewInMemoryService(opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Health summarizes the store for the health endpoint.
type Health struct {
	Driver   string        `json:"driver"`
	Revision int64         `json:"revision"`
	Uptime   time.Duration `json:"uptimeNs"`
}

// Health reports the store driver, document revision and process uptime.
func (s *Service) Health(ctx context.Context) (Health, error) {
	h := Health{Driver: s.store.Driver(), Uptime: time.Since(s.started)}
	err := s.store.View(ctx, func(v View) error {
		h.Revision = v.Revision()
		return nil
	})
	return h, err
}

func (s *Service) run(ctx context.Context, op string, fn func(tx Transaction) error) (domain.Result, error) {
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	if err != nil && !domain.IsNotFound(err) && !domain.IsValidation(err) && !domain.IsConflict(err) {
		s.logger.Error("content transaction failed", "operation", op, "error", err)
	}
	return res, err
}

func (s *Service) view(ctx context.Context, op string, fn func(v View) error) error {
	start := time.Now()
	err := s.store.View(ctx, fn)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	return err
}
