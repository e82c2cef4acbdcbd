// Package enrichment talks to the external text-refinement and OCR services.
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maltedev/product-sourcing/internal/models"
)

type Config struct {
	BaseURL   string
	OCRURL    string
	APIKey    string
	AccountID string
	Timeout   time.Duration
}

// InsufficientCreditsError is returned when the service rejects a request for
// lack of credits. It matches models.ErrInsufficientCredits.
type InsufficientCreditsError struct {
	Balance float64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient enrichment credits (balance %.0f)", e.Balance)
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == models.ErrInsufficientCredits
}

type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger.With("component", "enrichment"),
	}
}

type requestOption struct {
	Name       string `json:"name"`
	PriceDelta int64  `json:"priceDelta"`
	Qty        int    `json:"qty"`
}

type enrichRequest struct {
	Name           string                 `json:"name"`
	ShippingFee    int64                  `json:"shippingFee"`
	ImageUsage     string                 `json:"imageUsage"`
	Origin         string                 `json:"origin"`
	Manufacturer   string                 `json:"manufacturer"`
	Options        []requestOption        `json:"options"`
	Certifications []string               `json:"certifications"`
	AttributePairs []models.AttributePair `json:"attributePairs"`
	AccountID      string                 `json:"accountId"`
	OCRText        string                 `json:"ocrText"`
}

type enrichResponse struct {
	Output *models.EnrichedPayload `json:"output"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Balance *float64 `json:"balance"`
}

// Enrich sends the projected raw data plus OCR text of detailImage to the
// refinement service. detailImage may be empty.
func (c *Client) Enrich(ctx context.Context, raw *models.RawCrawlData, detailImage string) (*models.EnrichedPayload, error) {
	req := enrichRequest{
		Name:           raw.Name,
		ShippingFee:    raw.ShippingFee,
		ImageUsage:     raw.ImageUsage,
		Origin:         raw.Origin,
		Manufacturer:   raw.Manufacturer,
		Options:        []requestOption{},
		Certifications: raw.Certifications,
		AttributePairs: raw.AttributePairs,
		AccountID:      c.cfg.AccountID,
	}
	for _, opt := range raw.FlattenOptions() {
		req.Options = append(req.Options, requestOption{Name: opt.Name, PriceDelta: opt.PriceDelta, Qty: opt.Qty})
	}
	if detailImage != "" {
		req.OCRText = c.ExtractText(ctx, detailImage)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal enrichment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.cfg.BaseURL, "/")+"/enrich", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEnrichmentFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", models.ErrEnrichmentFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp.StatusCode, respBody)
	}

	var out enrichResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", models.ErrEnrichmentFailed, err)
	}
	if out.Output == nil {
		return nil, fmt.Errorf("%w: response has no output", models.ErrEnrichmentFailed)
	}

	c.logger.Info("enriched product",
		"name", raw.Name,
		"options", len(out.Output.Options),
		"ocr_chars", len(req.OCRText),
		"duration", time.Since(start),
	)
	return out.Output, nil
}

func (c *Client) statusError(status int, body []byte) error {
	var e errorResponse
	_ = json.Unmarshal(body, &e)

	if status == http.StatusForbidden && e.Balance != nil {
		return &InsufficientCreditsError{Balance: *e.Balance}
	}

	msg := e.Error
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return fmt.Errorf("%w: status %d: %s", models.ErrEnrichmentFailed, status, msg)
}

type ocrResponse struct {
	OCRText string `json:"ocrText"`
}

// ExtractText posts the image at path to the OCR service. Any failure
// degrades to empty text.
func (c *Client) ExtractText(ctx context.Context, path string) string {
	if c.cfg.OCRURL == "" {
		return ""
	}
	text, err := c.extractText(ctx, path)
	if err != nil {
		c.logger.Warn("ocr unavailable, continuing without text", "path", path, "error", err)
		return ""
	}
	return text
}

func (c *Client) extractText(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("failed to copy image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OCRURL, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr service returned status %d", resp.StatusCode)
	}

	var out ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode ocr response: %w", err)
	}
	if strings.TrimSpace(out.OCRText) == "" {
		return "", errors.New("ocr returned no text")
	}
	return strings.TrimSpace(out.OCRText), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}
