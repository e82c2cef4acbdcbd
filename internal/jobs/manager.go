// Package jobs tracks submitted batches and runs them one at a time.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/queue"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var (
	ErrBatchNotFound = errors.New("batch not found")
	ErrEmptyBatch    = errors.New("batch has no urls")
	ErrBatchFinished = errors.New("batch already finished")
)

// Runner processes the URLs of one batch.
type Runner interface {
	Run(ctx context.Context, urls []string) (*models.BatchResult, error)
}

// Sink receives the result of every batch that produced one.
type Sink interface {
	Deliver(ctx context.Context, batchID string, result *models.BatchResult) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, batchID string, result *models.BatchResult) error

func (f SinkFunc) Deliver(ctx context.Context, batchID string, result *models.BatchResult) error {
	return f(ctx, batchID, result)
}

type Batch struct {
	ID          string              `json:"id"`
	URLs        []string            `json:"urls"`
	Priority    int                 `json:"priority"`
	Status      string              `json:"status"`
	Succeeded   int                 `json:"succeeded"`
	Failed      int                 `json:"failed"`
	Records     int                 `json:"records"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Error       string              `json:"error,omitempty"`
	Result      *models.BatchResult `json:"result,omitempty"`
}

type Stats struct {
	TotalBatches     int `json:"total_batches"`
	PendingBatches   int `json:"pending_batches"`
	RunningBatches   int `json:"running_batches"`
	CompletedBatches int `json:"completed_batches"`
	FailedBatches    int `json:"failed_batches"`
	TotalRecords     int `json:"total_records"`
	QueueDepth       int `json:"queue_depth"`
}

type Manager struct {
	queue  queue.Queue
	runner Runner
	sinks  []Sink
	logger *slog.Logger

	mu      sync.RWMutex
	batches map[string]*Batch
	cancels map[string]context.CancelFunc
}

func NewManager(q queue.Queue, runner Runner, logger *slog.Logger, sinks ...Sink) *Manager {
	return &Manager{
		queue:   q,
		runner:  runner,
		sinks:   sinks,
		logger:  logger.With("component", "job_manager"),
		batches: make(map[string]*Batch),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Submit queues a batch. Blank URLs are dropped.
func (m *Manager) Submit(urls []string, priority int) (*Batch, error) {
	var cleaned []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrEmptyBatch
	}

	batch := &Batch{
		ID:        uuid.New().String(),
		URLs:      cleaned,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.batches[batch.ID] = batch
	m.mu.Unlock()

	err := m.queue.Push(&queue.Task{ID: batch.ID, URLs: cleaned, Priority: priority, CreatedAt: batch.CreatedAt})
	if err != nil {
		m.mu.Lock()
		delete(m.batches, batch.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to queue batch: %w", err)
	}

	m.logger.Info("batch submitted", "id", batch.ID, "urls", len(cleaned), "priority", priority)
	return m.snapshot(batch), nil
}

func (m *Manager) Get(id string) (*Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	batch, ok := m.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return m.snapshot(batch), nil
}

// List returns batches newest first without their full results.
func (m *Manager) List() []*Batch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Batch, 0, len(m.batches))
	for _, b := range m.batches {
		s := m.snapshot(b)
		s.Result = nil
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Cancel stops a running batch or drops a pending one before it starts.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch, ok := m.batches[id]
	if !ok {
		return ErrBatchNotFound
	}
	switch batch.Status {
	case StatusPending:
		now := time.Now()
		batch.Status = StatusCancelled
		batch.CompletedAt = &now
		m.queue.Remove(id)
	case StatusRunning:
		if cancel, ok := m.cancels[id]; ok {
			cancel()
		}
	default:
		return ErrBatchFinished
	}

	m.logger.Info("batch cancellation requested", "id", id)
	return nil
}

func (m *Manager) Stats() *Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{TotalBatches: len(m.batches), QueueDepth: m.queue.Size()}
	for _, b := range m.batches {
		switch b.Status {
		case StatusPending:
			stats.PendingBatches++
		case StatusRunning:
			stats.RunningBatches++
		case StatusCompleted:
			stats.CompletedBatches++
		case StatusFailed, StatusCancelled:
			stats.FailedBatches++
		}
		stats.TotalRecords += b.Records
	}
	return stats
}

// snapshot must be called with mu held.
func (m *Manager) snapshot(b *Batch) *Batch {
	c := *b
	c.URLs = append([]string(nil), b.URLs...)
	return &c
}
