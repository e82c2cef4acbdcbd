package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawProduct() *models.RawCrawlData {
	return &models.RawCrawlData{
		URL: "https://domeggook.com/1",
		RawBasicInfo: models.RawBasicInfo{
			Name:        "Tumbler",
			ShippingFee: 3000,
			Origin:      "중국",
			Options: []models.OptionAxis{{Options: []models.Option{
				{Name: "Red", PriceDelta: 0, Qty: models.SentinelQuantity},
			}}},
		},
		AttributePairs: []models.AttributePair{{Label: "재질", Value: "stainless"}},
	}
}

func TestClient_Enrich(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/enrich", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"output":{"itemName":"Steel Tumbler","model":"TB-500","originClass":"foreign",
			"originPlace":"China","options":[{"name":"Red","priceDelta":0,"qty":10}],"certifications":["CB063R1234"]}}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "secret", AccountID: "acct-1"}, slog.Default())
	payload, err := client.Enrich(context.Background(), rawProduct(), "")
	require.NoError(t, err)

	assert.Equal(t, "Steel Tumbler", payload.ItemName)
	assert.Equal(t, models.OriginForeign, payload.OriginClass)
	require.Len(t, payload.Options, 1)
	require.NotNil(t, payload.Options[0].Qty)
	assert.Equal(t, 10, *payload.Options[0].Qty)

	assert.Equal(t, "Tumbler", got["name"])
	assert.Equal(t, "acct-1", got["accountId"])
	assert.Equal(t, float64(3000), got["shippingFee"])
	assert.Equal(t, "", got["ocrText"])
	assert.Len(t, got["options"], 1)
}

func TestClient_Enrich_InsufficientCredits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"credits exhausted","balance":12}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, slog.Default())
	_, err := client.Enrich(context.Background(), rawProduct(), "")
	require.Error(t, err)

	assert.True(t, errors.Is(err, models.ErrInsufficientCredits))
	assert.False(t, errors.Is(err, models.ErrEnrichmentFailed))

	var credits *InsufficientCreditsError
	require.True(t, errors.As(err, &credits))
	assert.Equal(t, float64(12), credits.Balance)
}

func TestClient_Enrich_GenericFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"forbidden without balance", http.StatusForbidden, `{"error":"bad key"}`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"missing output", http.StatusOK, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(Config{BaseURL: server.URL}, slog.Default())
			_, err := client.Enrich(context.Background(), rawProduct(), "")
			assert.True(t, errors.Is(err, models.ErrEnrichmentFailed))
			assert.False(t, errors.Is(err, models.ErrInsufficientCredits))
		})
	}
}

func TestClient_OCR(t *testing.T) {
	image := filepath.Join(t.TempDir(), "detail.jpg")
	require.NoError(t, os.WriteFile(image, []byte("jpeg-bytes"), 0644))

	var enrichOCR string
	ocr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "detail.jpg", header.Filename)
		assert.Equal(t, "jpeg-bytes", string(data))
		w.Write([]byte(`{"ocrText":"  소재: 스테인리스  "}`))
	}))
	defer ocr.Close()

	enrich := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req enrichRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		enrichOCR = req.OCRText
		w.Write([]byte(`{"output":{"itemName":"x"}}`))
	}))
	defer enrich.Close()

	client := NewClient(Config{BaseURL: enrich.URL, OCRURL: ocr.URL}, slog.Default())
	_, err := client.Enrich(context.Background(), rawProduct(), image)
	require.NoError(t, err)
	assert.Equal(t, "소재: 스테인리스", enrichOCR)
}

func TestClient_OCRDegrades(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	image := filepath.Join(t.TempDir(), "detail.jpg")
	require.NoError(t, os.WriteFile(image, []byte("x"), 0644))

	assert.Equal(t, "", NewClient(Config{OCRURL: failing.URL}, slog.Default()).ExtractText(context.Background(), image))
	assert.Equal(t, "", NewClient(Config{}, slog.Default()).ExtractText(context.Background(), image))
	assert.Equal(t, "", NewClient(Config{OCRURL: failing.URL}, slog.Default()).ExtractText(context.Background(), "/does/not/exist.jpg"))
}
