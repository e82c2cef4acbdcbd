// Package storage keeps collected listing entries and exports assembled
// records as JSON files.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/maltedev/product-sourcing/internal/models"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Listing is a product URL found on a vendor listing page.
type Listing struct {
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	Price     *int64    `json:"price,omitempty"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	SourceURL string    `json:"source_url"`
	Status    string    `json:"status"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// ListingStorage is a JSON-file-backed set of listings keyed by URL.
type ListingStorage struct {
	mu       sync.RWMutex
	listings map[string]*Listing
	filename string
}

func NewListingStorage(filename string) (*ListingStorage, error) {
	ls := &ListingStorage{
		listings: make(map[string]*Listing),
		filename: filename,
	}

	if err := ls.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return ls, nil
}

// AddEntries stores entries collected from sourceURL. Known URLs keep their
// status so re-collecting a listing never resets finished work.
func (ls *ListingStorage) AddEntries(sourceURL string, entries []models.ListEntry) (int, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	added := 0
	now := time.Now()
	for _, e := range entries {
		if e.URL == "" {
			continue
		}
		if _, exists := ls.listings[e.URL]; exists {
			continue
		}
		ls.listings[e.URL] = &Listing{
			URL:       e.URL,
			Name:      e.Name,
			Price:     e.Price,
			Thumbnail: e.Thumbnail,
			SourceURL: sourceURL,
			Status:    StatusPending,
			AddedAt:   now,
			UpdatedAt: now,
		}
		added++
	}

	return added, ls.save()
}

func (ls *ListingStorage) Get(url string) (*Listing, bool) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	l, exists := ls.listings[url]
	return l, exists
}

// List returns listings with status (all when empty), oldest first.
func (ls *ListingStorage) List(status string) []*Listing {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	var out []*Listing
	for _, l := range ls.listings {
		if status == "" || l.Status == status {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].URL < out[j].URL
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

// PendingURLs returns up to limit pending URLs, oldest first. limit <= 0 means all.
func (ls *ListingStorage) PendingURLs(limit int) []string {
	var urls []string
	for _, l := range ls.List(StatusPending) {
		urls = append(urls, l.URL)
		if limit > 0 && len(urls) == limit {
			break
		}
	}
	return urls
}

// UpdateStatus is a no-op for URLs that were never collected.
func (ls *ListingStorage) UpdateStatus(url, status, errorMsg string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	l, exists := ls.listings[url]
	if !exists {
		return nil
	}

	l.Status = status
	l.UpdatedAt = time.Now()
	l.Error = errorMsg

	return ls.save()
}

// ApplyResults marks every listing in result as completed or failed.
func (ls *ListingStorage) ApplyResults(result *models.BatchResult) error {
	for _, item := range result.Items {
		status, msg := StatusCompleted, ""
		if !item.Success {
			status, msg = StatusFailed, item.Message
		}
		if err := ls.UpdateStatus(item.URL, status, msg); err != nil {
			return err
		}
	}
	return nil
}

func (ls *ListingStorage) GetStats() map[string]int {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	stats := make(map[string]int)
	for _, l := range ls.listings {
		stats[l.Status]++
	}
	stats["total"] = len(ls.listings)
	return stats
}

func (ls *ListingStorage) save() error {
	return writeJSON(ls.filename, ls.listings)
}

func (ls *ListingStorage) Load() error {
	data, err := os.ReadFile(ls.filename)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &ls.listings)
}

// WriteRecords exports records in order for the spreadsheet writer.
func WriteRecords(path string, records []models.OutputRecord) error {
	if records == nil {
		records = []models.OutputRecord{}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	return writeJSON(path, records)
}

// writeJSON writes through a temp file so readers never see a partial file.
func writeJSON(filename string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, filename)
}
