package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/queue"
)

// StartWorker takes batches off the queue until ctx ends. Only one batch runs
// at a time because every batch shares the same browser session.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("batch worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				m.logger.Info("batch worker stopping")
				return
			}
			m.logger.Error("failed to take batch from queue", "error", err)
			continue
		}
		m.processBatch(ctx, task)
	}
}

func (m *Manager) processBatch(ctx context.Context, task *queue.Task) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !m.start(task.ID, cancel) {
		m.logger.Info("skipping cancelled batch", "id", task.ID)
		return
	}

	m.logger.Info("processing batch", "id", task.ID, "urls", len(task.URLs))
	result, err := m.runner.Run(runCtx, task.URLs)

	if result != nil {
		for _, sink := range m.sinks {
			if sinkErr := sink.Deliver(ctx, task.ID, result); sinkErr != nil {
				m.logger.Error("failed to deliver batch result", "id", task.ID, "error", sinkErr)
			}
		}
	}

	m.finish(task.ID, result, err)
}

// start marks the batch running. It reports false for batches cancelled while queued.
func (m *Manager) start(id string, cancel context.CancelFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch, ok := m.batches[id]
	if !ok || batch.Status != StatusPending {
		return false
	}
	now := time.Now()
	batch.Status = StatusRunning
	batch.StartedAt = &now
	m.cancels[id] = cancel
	return true
}

func (m *Manager) finish(id string, result *models.BatchResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cancels, id)
	batch, ok := m.batches[id]
	if !ok {
		return
	}

	now := time.Now()
	batch.CompletedAt = &now
	batch.Result = result
	if result != nil {
		batch.Succeeded = result.Succeeded()
		batch.Failed = len(result.Items) - batch.Succeeded
		batch.Records = len(result.Records())
	}

	switch {
	case errors.Is(err, context.Canceled):
		batch.Status = StatusCancelled
		batch.Error = err.Error()
	case err != nil:
		batch.Status = StatusFailed
		batch.Error = err.Error()
	default:
		batch.Status = StatusCompleted
	}

	m.logger.Info("batch finished",
		"id", id,
		"status", batch.Status,
		"succeeded", batch.Succeeded,
		"failed", batch.Failed,
		"records", batch.Records,
	)
}
