package certification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maltedev/product-sourcing/internal/models"
	"golang.org/x/time/rate"
)

// Detail is what the authority knows about one certificate.
type Detail struct {
	Number   string `json:"certNum"`
	Category string `json:"category"`
	Status   string `json:"status"`
	// SelfDeclared marks supplier conformity declarations.
	SelfDeclared bool `json:"selfDeclared"`
}

// ValidationError reports a certificate the authority rejected or could not find.
type ValidationError struct {
	Number string
	Status string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("certificate %s failed validation: %s", e.Number, e.Status)
}

func (e *ValidationError) Is(target error) bool {
	return target == models.ErrCertificationValidation
}

// Authority looks up certificate numbers.
type Authority interface {
	Lookup(ctx context.Context, number string) (*Detail, error)
}

var validStatuses = []string{"", "valid", "유효", "적합", "인증"}

// HTTPAuthority queries a certification registry over HTTP.
type HTTPAuthority struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	rateLimiter *rate.Limiter
}

func NewHTTPAuthority(baseURL, apiKey string, requestsPerSecond float64) *HTTPAuthority {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	return &HTTPAuthority{
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

func (a *HTTPAuthority) Lookup(ctx context.Context, number string) (*Detail, error) {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	params := url.Values{}
	params.Add("certNum", number)
	if a.apiKey != "" {
		params.Add("apiKey", a.apiKey)
	}
	reqURL := fmt.Sprintf("%s/certifications?%s", a.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &ValidationError{Number: number, Status: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		status := strings.TrimSpace(string(body))
		if status == "" {
			status = http.StatusText(resp.StatusCode)
		}
		return nil, &ValidationError{Number: number, Status: status}
	}

	var detail Detail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, &ValidationError{Number: number, Status: "unreadable response"}
	}
	if !isValidStatus(detail.Status) {
		return nil, &ValidationError{Number: number, Status: detail.Status}
	}
	if detail.Number == "" {
		detail.Number = number
	}
	return &detail, nil
}

func isValidStatus(status string) bool {
	status = strings.ToLower(strings.TrimSpace(status))
	for _, s := range validStatuses {
		if status == s {
			return true
		}
	}
	return false
}
