package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maltedev/product-sourcing/internal/models"
	"golang.org/x/time/rate"
)

const maxImageBytes = 20 << 20

// Fetcher downloads images at a bounded request rate.
type Fetcher struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	userAgent   string
}

func NewFetcher(requestsPerSecond float64, timeout time.Duration, userAgent string) *Fetcher {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 4
	}
	return &Fetcher{
		httpClient:  &http.Client{Timeout: timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 2),
		userAgent:   userAgent,
	}
}

// Fetch returns the body of url. Every failure wraps models.ErrImageFetch.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", models.ErrImageFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", models.ErrImageFetch, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrImageFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", models.ErrImageFetch, url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", models.ErrImageFetch, err)
	}
	return data, nil
}
