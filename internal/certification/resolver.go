// Package certification sorts certificate numbers into the four fixed buckets.
package certification

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/maltedev/product-sourcing/internal/models"
)

var (
	broadcastingPrefix   = regexp.MustCompile(`(?i)^(R-|MSIP-|KCC-|RRA-|RRL-)`)
	broadcastingKeywords = []string{"전파", "방송통신", "적합성평가"}
)

// Resolver validates numbers and assigns each bucket at most one of them.
type Resolver struct {
	authority Authority
	logger    *slog.Logger
}

func NewResolver(authority Authority, logger *slog.Logger) *Resolver {
	return &Resolver{
		authority: authority,
		logger:    logger.With("component", "certification"),
	}
}

// Resolve never fails. Rejected numbers leave their bucket not applicable and
// are summarized in IssuesText.
func (r *Resolver) Resolve(ctx context.Context, numbers []string) models.CertificationResolution {
	res := models.NewCertificationResolution()
	var issues []string
	seen := make(map[string]bool)

	for _, number := range numbers {
		number = strings.TrimSpace(number)
		if number == "" || seen[number] {
			continue
		}
		seen[number] = true

		broadcasting := IsBroadcasting(number)

		detail, err := r.authority.Lookup(ctx, number)
		if err != nil {
			bucket := models.BucketDailyGoods
			if broadcasting {
				bucket = models.BucketBroadcasting
			}
			issues = append(issues, fmt.Sprintf("[%s] %s: %v", bucket, number, err))
			r.logger.Warn("certificate rejected", "number", number, "bucket", bucket, "error", err)
			continue
		}

		bucket := models.BucketBroadcasting
		if !broadcasting {
			bucket = ClassifyCategory(detail.Category)
		}

		entry := res.Entry(bucket)
		if entry.Type != models.CertNotApplicable {
			r.logger.Debug("bucket already filled", "bucket", bucket, "number", number, "kept", entry.CertNumber)
			continue
		}
		entry.CertNumber = number
		entry.Type = models.CertRegistered
		if detail.SelfDeclared {
			entry.Type = models.CertSelfDeclared
		}
	}

	if len(issues) > 0 {
		res.Issue = true
		res.IssuesText = strings.Join(issues, "; ")
	}
	return res
}

// IsBroadcasting reports whether number looks like a radio-frequency conformity number.
func IsBroadcasting(number string) bool {
	if broadcastingPrefix.MatchString(number) {
		return true
	}
	for _, kw := range broadcastingKeywords {
		if strings.Contains(number, kw) {
			return true
		}
	}
	return false
}

// ClassifyCategory maps the authority's category text to a bucket.
func ClassifyCategory(category string) models.Bucket {
	lower := strings.ToLower(category)
	switch {
	case strings.Contains(lower, "어린이") || strings.Contains(lower, "children"):
		return models.BucketChildren
	case strings.Contains(lower, "전기") || strings.Contains(lower, "electrical"):
		return models.BucketElectrical
	default:
		return models.BucketDailyGoods
	}
}
