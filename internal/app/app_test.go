package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maltedev/product-sourcing/internal/config"
	"github.com/maltedev/product-sourcing/internal/document"
	"github.com/maltedev/product-sourcing/internal/events"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestBrowserOptions(t *testing.T) {
	opts := BrowserOptions(config.BrowserConfig{
		Headless:       false,
		Timeout:        5 * time.Second,
		ViewportHeight: 900,
		UserDataDir:    "/tmp/profile",
	})
	assert.False(t, opts.Headless)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, 900, opts.ViewportHeight)
	assert.Equal(t, "/tmp/profile", opts.UserDataDir)
	assert.NotEmpty(t, opts.ExtraHeaders)
}

const tumblerPage = `<html><body>
<h1 id="lInfoItemTitle">Steel Tumbler</h1>
<div id="lInfoItemNo">12345</div>
<div id="lInfoAmt"><div class="sale"><span class="amt">9,000원</span></div></div>
</body></html>`

func TestNewPipeline_EndToEnd(t *testing.T) {
	enrich := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"output": map[string]interface{}{"itemName": "Steel Tumbler 500ml"},
		})
	}))
	defer enrich.Close()

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Enrichment.BaseURL = enrich.URL
	cfg.Sourcing.OutputDir = t.TempDir()
	cfg.Category.WorkbookPath = filepath.Join(t.TempDir(), "missing.xlsx")

	nav := &document.StaticNavigator{Pages: map[string]string{"https://domeggook.com/12345": tumblerPage}}
	p := NewPipeline(cfg, nav, slog.Default())

	result, err := p.Run(context.Background(), []string{"https://domeggook.com/12345"})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.True(t, result.Items[0].Success, result.Items[0].Message)

	records := result.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "Steel Tumbler 500ml", records[0].Name)
	assert.Equal(t, int64(10800), records[0].Price)
	assert.True(t, records[0].Category.IsEmpty())
}

func TestSinks(t *testing.T) {
	dir := t.TempDir()
	result := &models.BatchResult{Items: []models.ItemResult{
		{URL: "https://domeggook.com/1", Success: true, Records: []models.OutputRecord{{SourceURL: "https://domeggook.com/1", Price: 10800}}},
		{URL: "https://domeggook.com/2", Success: false, Message: "product name not found"},
	}}

	require.NoError(t, RecordFileSink(dir).Deliver(context.Background(), "b-1", result))
	data, err := os.ReadFile(filepath.Join(dir, "records_b-1.json"))
	require.NoError(t, err)
	var records []models.OutputRecord
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Len(t, records, 1)

	listings, err := storage.NewListingStorage(filepath.Join(dir, "listings.json"))
	require.NoError(t, err)
	_, err = listings.AddEntries("https://domeggook.com/list", []models.ListEntry{
		{URL: "https://domeggook.com/1"}, {URL: "https://domeggook.com/2"},
	})
	require.NoError(t, err)

	require.NoError(t, ListingStatusSink(listings).Deliver(context.Background(), "b-1", result))
	l, _ := listings.Get("https://domeggook.com/2")
	assert.Equal(t, storage.StatusFailed, l.Status)
	assert.Equal(t, "product name not found", l.Error)
}

func TestExportHandler(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	payload := &events.RecordsAssembledPayload{
		BatchID: "b-2",
		Records: []models.OutputRecord{{SourceURL: "https://domeggook.com/1", Price: 10800}},
	}

	require.NoError(t, ExportHandler(dir)(context.Background(), payload))
	data, err := os.ReadFile(filepath.Join(dir, "records_b-2.json"))
	require.NoError(t, err)
	var records []models.OutputRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, int64(10800), records[0].Price)
}
