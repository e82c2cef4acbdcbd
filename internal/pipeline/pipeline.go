// Package pipeline drives source URLs through extraction, imagery,
// enrichment, certification, category mapping and record assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/product-sourcing/internal/assembler"
	"github.com/maltedev/product-sourcing/internal/document"
	"github.com/maltedev/product-sourcing/internal/enrichment"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/source"
	"github.com/maltedev/product-sourcing/internal/vendor"
)

type ImageAcquirer interface {
	Directory(desc *vendor.Descriptor, info *models.RawBasicInfo) string
	SaveThumbnails(ctx context.Context, dir string, urls []string) []string
	SaveDetailImage(ctx context.Context, dir, url string) (string, error)
	CaptureDetail(ctx context.Context, capturer document.RegionCapturer, dir, selector string, width int) (string, error)
}

type Enricher interface {
	Enrich(ctx context.Context, raw *models.RawCrawlData, detailImage string) (*models.EnrichedPayload, error)
}

type CertificationResolver interface {
	Resolve(ctx context.Context, numbers []string) models.CertificationResolution
}

type CategoryMapper interface {
	Lookup(sheet string, categories []string) (models.CategoryMapping, error)
}

type RecordAssembler interface {
	Assemble(in assembler.Input) []models.OutputRecord
}

// Pacer inserts the politeness delay between URLs of sensitive vendors. Wait
// returns immediately for the first visit after Reset.
type Pacer interface {
	Reset()
	Wait(ctx context.Context) error
	RecordSuccess()
	RecordError()
}

type Deps struct {
	Adapters       *source.Set
	Navigator      document.Navigator
	Images         ImageAcquirer
	Enricher       Enricher
	Certifications CertificationResolver
	Categories     CategoryMapper
	Assembler      RecordAssembler
	Pacer          Pacer
}

// Pipeline processes URLs strictly one at a time against the shared document
// context. session serializes every caller that drives the navigator.
type Pipeline struct {
	deps    Deps
	session sync.Mutex
	now     func() time.Time
	logger  *slog.Logger
}

func New(deps Deps, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		deps:   deps,
		now:    time.Now,
		logger: logger.With("component", "pipeline"),
	}
}

// Run processes urls in order. Item failures are recorded and the batch moves
// on. An unsupported first URL or a login wall stops the batch. Cancellation
// is checked before each URL and returns the partial result; a URL already
// started runs to completion.
func (p *Pipeline) Run(ctx context.Context, urls []string) (*models.BatchResult, error) {
	p.session.Lock()
	defer p.session.Unlock()

	result := &models.BatchResult{StartedAt: p.now()}
	defer func() { result.FinishedAt = p.now() }()

	p.logger.Info("starting batch", "urls", len(urls))
	if p.deps.Pacer != nil {
		p.deps.Pacer.Reset()
	}

	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("batch cancelled", "processed", i, "total", len(urls))
			return result, err
		}

		adapter, err := p.deps.Adapters.ForURL(url)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			result.Items = append(result.Items, failedItem(url, err))
			continue
		}

		if adapter.Descriptor().Politeness && p.deps.Pacer != nil {
			if err := p.deps.Pacer.Wait(ctx); err != nil {
				return result, err
			}
		}

		records, err := p.process(context.WithoutCancel(ctx), adapter, url)
		if err != nil {
			p.recordOutcome(false)
			result.Items = append(result.Items, failedItem(url, err))
			if errors.Is(err, models.ErrLoginRequired) {
				p.logger.Error("login required, stopping batch", "url", url)
				return result, err
			}
			p.logger.Warn("item failed", "url", url, "error", err)
			continue
		}

		p.recordOutcome(true)
		result.Items = append(result.Items, models.ItemResult{
			URL:     url,
			Success: true,
			Message: fmt.Sprintf("%d records assembled", len(records)),
			Records: records,
		})
	}

	p.logger.Info("batch finished", "urls", len(urls), "succeeded", result.Succeeded())
	return result, nil
}

// Process runs a single URL through the whole pipeline.
func (p *Pipeline) Process(ctx context.Context, url string) ([]models.OutputRecord, error) {
	p.session.Lock()
	defer p.session.Unlock()

	adapter, err := p.deps.Adapters.ForURL(url)
	if err != nil {
		return nil, err
	}
	return p.process(ctx, adapter, url)
}

// CollectListing returns the product entries on a vendor listing page.
func (p *Pipeline) CollectListing(ctx context.Context, url string) ([]models.ListEntry, error) {
	p.session.Lock()
	defer p.session.Unlock()

	adapter, err := p.deps.Adapters.ForURL(url)
	if err != nil {
		return nil, err
	}
	doc, err := p.load(ctx, adapter, url)
	if err != nil {
		return nil, err
	}
	return adapter.CollectList(ctx, doc)
}

func (p *Pipeline) load(ctx context.Context, adapter source.Adapter, url string) (document.Document, error) {
	doc, err := p.deps.Navigator.Navigate(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to load page: %w", err)
	}
	if adapter.CheckLoginRequired(doc) {
		return nil, fmt.Errorf("%w: %s redirected to a login page; sign in to %s in the shared browser and resubmit",
			models.ErrLoginRequired, url, adapter.Descriptor().DisplayName)
	}
	return doc, nil
}

func (p *Pipeline) process(ctx context.Context, adapter source.Adapter, url string) ([]models.OutputRecord, error) {
	desc := adapter.Descriptor()
	logger := p.logger.With("url", url, "vendor", string(desc.Key))

	doc, err := p.load(ctx, adapter, url)
	if err != nil {
		return nil, err
	}

	info, err := adapter.ExtractBasicInfo(ctx, doc)
	if err != nil {
		return nil, err
	}

	raw := &models.RawCrawlData{
		URL:            url,
		VendorKey:      string(desc.Key),
		RawBasicInfo:   *info,
		AttributePairs: adapter.CollectAdditionalInfo(doc),
		CrawledAt:      p.now(),
	}
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	detail := p.acquireImages(ctx, adapter, doc, raw)

	enriched, err := p.deps.Enricher.Enrich(ctx, raw, detail)
	if err != nil {
		return nil, describeEnrichmentError(err)
	}

	certs := p.deps.Certifications.Resolve(ctx, enriched.Certifications)
	if certs.Issue {
		logger.Warn("certification issues", "issues", certs.IssuesText)
	}

	mapping, err := p.deps.Categories.Lookup(desc.CategorySheet, info.Categories)
	if err != nil {
		logger.Warn("category lookup failed", "error", err)
		mapping = models.CategoryMapping{}
	}

	records := p.deps.Assembler.Assemble(assembler.Input{
		Raw:           raw,
		Enriched:      enriched,
		Certification: certs,
		Category:      mapping,
		MainImages:    raw.MainImages,
		DetailImage:   detail,
	})

	logger.Info("item processed", "records", len(records), "images", len(raw.MainImages), "uncategorized", mapping.IsEmpty())
	return records, nil
}

// acquireImages fills the image fields of raw and returns the detail image
// path, or "" when none could be saved.
func (p *Pipeline) acquireImages(ctx context.Context, adapter source.Adapter, doc document.Document, raw *models.RawCrawlData) string {
	desc := adapter.Descriptor()
	raw.ImageDir = p.deps.Images.Directory(desc, &raw.RawBasicInfo)
	raw.MainImages = p.deps.Images.SaveThumbnails(ctx, raw.ImageDir, adapter.ThumbnailURLs(doc))

	var (
		detail string
		err    error
	)
	switch desc.Detail {
	case vendor.DetailCapture:
		capturer, ok := doc.(document.RegionCapturer)
		if !ok {
			err = document.ErrCaptureUnsupported
			break
		}
		detail, err = p.deps.Images.CaptureDetail(ctx, capturer, raw.ImageDir, desc.DetailPanel, desc.CaptureWidth)
	default:
		url, ok := adapter.DetailImageURL(doc)
		if !ok {
			return ""
		}
		detail, err = p.deps.Images.SaveDetailImage(ctx, raw.ImageDir, url)
	}
	if err != nil {
		p.logger.Warn("detail image skipped", "url", raw.URL, "error", err)
		return ""
	}
	raw.DetailImages = []string{detail}
	return detail
}

func (p *Pipeline) recordOutcome(ok bool) {
	if p.deps.Pacer == nil {
		return
	}
	if ok {
		p.deps.Pacer.RecordSuccess()
	} else {
		p.deps.Pacer.RecordError()
	}
}

func describeEnrichmentError(err error) error {
	var credits *enrichment.InsufficientCreditsError
	if errors.As(err, &credits) {
		return fmt.Errorf("%w: top up the enrichment account and resubmit", err)
	}
	return err
}

func failedItem(url string, err error) models.ItemResult {
	return models.ItemResult{URL: url, Success: false, Message: err.Error()}
}
