// Package api exposes batch submission and listing management over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/product-sourcing/internal/jobs"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/queue"
	"github.com/maltedev/product-sourcing/internal/storage"
)

const defaultListingBatch = 50

type BatchManager interface {
	Submit(urls []string, priority int) (*jobs.Batch, error)
	Get(id string) (*jobs.Batch, error)
	List() []*jobs.Batch
	Cancel(id string) error
	Stats() *jobs.Stats
}

type ListingCollector interface {
	CollectListing(ctx context.Context, url string) ([]models.ListEntry, error)
}

type ListingStore interface {
	AddEntries(sourceURL string, entries []models.ListEntry) (int, error)
	List(status string) []*storage.Listing
	PendingURLs(limit int) []string
	UpdateStatus(url, status, errorMsg string) error
	GetStats() map[string]int
}

// OutboxCounter reports relay backlog; nil when persistence is disabled.
type OutboxCounter interface {
	Counts(ctx context.Context) (pending, deadLetter int64, err error)
}

type Handlers struct {
	batches   BatchManager
	collector ListingCollector
	listings  ListingStore
	outbox    OutboxCounter
	logger    *slog.Logger
}

func NewHandlers(batches BatchManager, collector ListingCollector, listings ListingStore, outbox OutboxCounter, logger *slog.Logger) *Handlers {
	return &Handlers{
		batches:   batches,
		collector: collector,
		listings:  listings,
		outbox:    outbox,
		logger:    logger.With("component", "api"),
	}
}

type CreateBatchRequest struct {
	URLs     []string `json:"urls"`
	Priority int      `json:"priority"`
}

type CreateBatchResponse struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
	URLs    int    `json:"urls"`
	Message string `json:"message"`
}

func (h *Handlers) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.submit(w, req.URLs, req.Priority)
}

func (h *Handlers) submit(w http.ResponseWriter, urls []string, priority int) {
	batch, err := h.batches.Submit(urls, priority)
	switch {
	case errors.Is(err, jobs.ErrEmptyBatch):
		h.respondError(w, http.StatusBadRequest, "urls is required")
		return
	case errors.Is(err, queue.ErrQueueFull):
		h.respondError(w, http.StatusServiceUnavailable, "batch queue is full")
		return
	case err != nil:
		h.logger.Error("failed to submit batch", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to submit batch")
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateBatchResponse{
		BatchID: batch.ID,
		Status:  batch.Status,
		URLs:    len(batch.URLs),
		Message: "Batch queued",
	})
}

func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.batches.Get(chi.URLParam(r, "batchID"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "batch not found")
		return
	}
	h.respondJSON(w, http.StatusOK, batch)
}

func (h *Handlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.batches.List())
}

func (h *Handlers) CancelBatch(w http.ResponseWriter, r *http.Request) {
	err := h.batches.Cancel(chi.URLParam(r, "batchID"))
	switch {
	case errors.Is(err, jobs.ErrBatchNotFound):
		h.respondError(w, http.StatusNotFound, "batch not found")
	case errors.Is(err, jobs.ErrBatchFinished):
		h.respondError(w, http.StatusConflict, "batch already finished")
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, "failed to cancel batch")
	default:
		h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
	}
}

type CollectListingRequest struct {
	URL string `json:"url"`
}

type CollectListingResponse struct {
	Found   int                `json:"found"`
	Added   int                `json:"added"`
	Entries []models.ListEntry `json:"entries"`
}

// CollectListing reads a vendor listing page and stores its products as pending.
func (h *Handlers) CollectListing(w http.ResponseWriter, r *http.Request) {
	var req CollectListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	entries, err := h.collector.CollectListing(r.Context(), req.URL)
	if err != nil {
		h.logger.Error("failed to collect listing", "url", req.URL, "error", err)
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, models.ErrUnsupportedSource):
			status = http.StatusBadRequest
		case errors.Is(err, models.ErrLoginRequired):
			status = http.StatusConflict
		}
		h.respondError(w, status, err.Error())
		return
	}

	added, err := h.listings.AddEntries(req.URL, entries)
	if err != nil {
		h.logger.Error("failed to store listing", "url", req.URL, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to store listing")
		return
	}

	h.respondJSON(w, http.StatusOK, CollectListingResponse{Found: len(entries), Added: added, Entries: entries})
}

func (h *Handlers) ListListings(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.listings.List(r.URL.Query().Get("status")))
}

type SubmitListingsRequest struct {
	Limit    int `json:"limit"`
	Priority int `json:"priority"`
}

// SubmitListings queues pending listing products as one batch.
func (h *Handlers) SubmitListings(w http.ResponseWriter, r *http.Request) {
	var req SubmitListingsRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = defaultListingBatch
	}

	urls := h.listings.PendingURLs(req.Limit)
	if len(urls) == 0 {
		h.respondError(w, http.StatusNotFound, "no pending listings")
		return
	}
	for _, u := range urls {
		if err := h.listings.UpdateStatus(u, storage.StatusProcessing, ""); err != nil {
			h.logger.Warn("failed to mark listing processing", "url", u, "error", err)
		}
	}

	h.submit(w, urls, req.Priority)
}

type StatsResponse struct {
	Batches  *jobs.Stats    `json:"batches"`
	Listings map[string]int `json:"listings"`
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, StatsResponse{
		Batches:  h.batches.Stats(),
		Listings: h.listings.GetStats(),
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pending, deadLetter, err := h.outbox.Counts(r.Context())
		if err != nil {
			h.logger.Warn("failed to read outbox counts", "error", err)
		}
		health["outbox"] = map[string]interface{}{
			"pending":     pending,
			"dead_letter": deadLetter,
		}
		if pending > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetter > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
