package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingStorage_AddAndReload(t *testing.T) {
	file := filepath.Join(t.TempDir(), "listings.json")
	ls, err := NewListingStorage(file)
	require.NoError(t, err)

	price := int64(1000)
	added, err := ls.AddEntries("https://domeggook.com/list", []models.ListEntry{
		{Name: "One", URL: "https://domeggook.com/1", Price: &price},
		{Name: "Two", URL: "https://domeggook.com/2"},
		{Name: "No URL"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	require.NoError(t, ls.UpdateStatus("https://domeggook.com/1", StatusCompleted, ""))

	added, err = ls.AddEntries("https://domeggook.com/list", []models.ListEntry{{Name: "One", URL: "https://domeggook.com/1"}})
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	reloaded, err := NewListingStorage(file)
	require.NoError(t, err)

	l, ok := reloaded.Get("https://domeggook.com/1")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, l.Status)
	assert.Equal(t, int64(1000), *l.Price)
	assert.Equal(t, []string{"https://domeggook.com/2"}, reloaded.PendingURLs(0))
	assert.Equal(t, map[string]int{"completed": 1, "pending": 1, "total": 2}, reloaded.GetStats())
}

func TestListingStorage_ApplyResults(t *testing.T) {
	ls, err := NewListingStorage(filepath.Join(t.TempDir(), "listings.json"))
	require.NoError(t, err)
	_, err = ls.AddEntries("src", []models.ListEntry{{URL: "u1"}, {URL: "u2"}})
	require.NoError(t, err)

	require.NoError(t, ls.ApplyResults(&models.BatchResult{Items: []models.ItemResult{
		{URL: "u1", Success: true},
		{URL: "u2", Success: false, Message: "product name not found on u2"},
		{URL: "u3", Success: true},
	}}))

	l, _ := ls.Get("u2")
	assert.Equal(t, StatusFailed, l.Status)
	assert.Equal(t, "product name not found on u2", l.Error)
	assert.Len(t, ls.List(StatusCompleted), 1)
	assert.Empty(t, ls.PendingURLs(10))
}

func TestWriteRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "batch.json")
	records := []models.OutputRecord{{Name: "A", Price: 12000}, {Name: "B", Price: 14400}}

	require.NoError(t, WriteRecords(path, records))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []models.OutputRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "A", got[0].Name)
	assert.Equal(t, int64(14400), got[1].Price)
}
