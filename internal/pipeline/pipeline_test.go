package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/maltedev/product-sourcing/internal/assembler"
	"github.com/maltedev/product-sourcing/internal/document"
	"github.com/maltedev/product-sourcing/internal/enrichment"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/ratelimit"
	"github.com/maltedev/product-sourcing/internal/source"
	"github.com/maltedev/product-sourcing/internal/vendor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const productPage = `<html><body>
<h1 id="lInfoItemTitle">Steel Tumbler</h1>
<div id="lInfoItemNo">12345</div>
<div id="lPath"><a>주방</a><a>컵</a><a>텀블러</a></div>
<div id="lInfoAmt"><div class="sale"><span class="amt">9,000원</span></div></div>
<select id="optSel1"><option value="">선택</option><option value="r" data-price="9000">Red</option></select>
<div id="lThumbImg"><img src="/img/1.jpg"></div>
<div id="lInfoDetail"><img src="/detail/1.jpg"></div>
</body></html>`

const namelessPage = `<html><body><div id="lInfoAmt"><div class="sale"><span class="amt">9,000원</span></div></div></body></html>`

const smartstorePage = `<html><body>
<div class="_product_title"><h3>Lamp</h3></div>
<div class="price"><strong class="sale"><span class="value">21,000</span></strong></div>
</body></html>`

type fakeImages struct {
	detailURLs   []string
	captures     int
	onThumbnails func()
}

func (f *fakeImages) Directory(desc *vendor.Descriptor, info *models.RawBasicInfo) string {
	return "out/" + desc.FilePrefix + "_" + info.ProductCode
}

func (f *fakeImages) SaveThumbnails(ctx context.Context, dir string, urls []string) []string {
	if f.onThumbnails != nil {
		f.onThumbnails()
	}
	out := make([]string, len(urls))
	for i := range urls {
		out[i] = dir + "/thumb.jpg"
	}
	return out
}

func (f *fakeImages) SaveDetailImage(ctx context.Context, dir, url string) (string, error) {
	f.detailURLs = append(f.detailURLs, url)
	return dir + "/detail.jpg", nil
}

func (f *fakeImages) CaptureDetail(ctx context.Context, capturer document.RegionCapturer, dir, selector string, width int) (string, error) {
	f.captures++
	return dir + "/capture.jpg", nil
}

type MockEnricher struct {
	mock.Mock
}

func (m *MockEnricher) Enrich(ctx context.Context, raw *models.RawCrawlData, detailImage string) (*models.EnrichedPayload, error) {
	args := m.Called(ctx, raw, detailImage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EnrichedPayload), args.Error(1)
}

type fakeCerts struct {
	seen [][]string
}

func (f *fakeCerts) Resolve(ctx context.Context, numbers []string) models.CertificationResolution {
	f.seen = append(f.seen, numbers)
	res := models.NewCertificationResolution()
	if len(numbers) > 0 {
		res.DailyGoods = models.CertificationEntry{Type: models.CertRegistered, CertNumber: numbers[0]}
	}
	return res
}

type fakeCategories struct {
	err error
}

func (f *fakeCategories) Lookup(sheet string, categories []string) (models.CategoryMapping, error) {
	if f.err != nil || len(categories) == 0 {
		return models.CategoryMapping{}, f.err
	}
	return models.CategoryMapping{TargetCategory1: sheet, CatalogCode: "c-" + categories[len(categories)-1]}, nil
}

type fakePacer struct {
	resets, waits, successes, errors int
}

func (f *fakePacer) Reset()                         { f.resets++ }
func (f *fakePacer) Wait(ctx context.Context) error { f.waits++; return nil }
func (f *fakePacer) RecordSuccess()                 { f.successes++ }
func (f *fakePacer) RecordError()                   { f.errors++ }

type fixture struct {
	pipeline *Pipeline
	images   *fakeImages
	enricher *MockEnricher
	certs    *fakeCerts
	pacer    *fakePacer
}

func newFixture(t *testing.T, pages map[string]string) *fixture {
	t.Helper()
	f := &fixture{
		images:   &fakeImages{},
		enricher: new(MockEnricher),
		certs:    &fakeCerts{},
		pacer:    &fakePacer{},
	}
	f.pipeline = New(Deps{
		Adapters:       source.NewSet(vendor.DefaultRegistry(), slog.Default()),
		Navigator:      &document.StaticNavigator{Pages: pages},
		Images:         f.images,
		Enricher:       f.enricher,
		Certifications: f.certs,
		Categories:     &fakeCategories{},
		Assembler:      assembler.New(assembler.DefaultConfig(), slog.Default()),
		Pacer:          f.pacer,
	}, slog.Default())
	return f
}

func TestPipeline_Run_EndToEnd(t *testing.T) {
	f := newFixture(t, map[string]string{"https://domeggook.com/12345": productPage})
	f.enricher.On("Enrich", mock.Anything, mock.Anything, "out/DMG_12345/detail.jpg").
		Return(&models.EnrichedPayload{ItemName: "Steel Tumbler 500", Certifications: []string{"CB1"}}, nil)

	result, err := f.pipeline.Run(context.Background(), []string{"https://domeggook.com/12345"})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.True(t, result.Items[0].Success, result.Items[0].Message)

	records := result.Records()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, int64(10800), rec.Price)
	assert.Equal(t, 9999, rec.Stock)
	assert.Equal(t, "Red", rec.OptionName)
	assert.Equal(t, "Steel Tumbler 500", rec.Name)
	assert.Equal(t, []string{"out/DMG_12345/thumb.jpg"}, rec.MainImages)
	assert.Equal(t, "out/DMG_12345/detail.jpg", rec.DetailImage)
	assert.Equal(t, "CB1", rec.Certification.DailyGoods.CertNumber)
	assert.Equal(t, models.CategoryMapping{TargetCategory1: "domeggook", CatalogCode: "c-텀블러"}, rec.Category)

	assert.Equal(t, []string{"https://domeggook.com/detail/1.jpg"}, f.images.detailURLs)
	assert.Equal(t, [][]string{{"CB1"}}, f.certs.seen)
	f.enricher.AssertExpectations(t)
}

func TestPipeline_Run_MissingNameDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, map[string]string{
		"https://domeggook.com/1": namelessPage,
		"https://domeggook.com/2": productPage,
	})
	f.enricher.On("Enrich", mock.Anything, mock.Anything, mock.Anything).Return(&models.EnrichedPayload{}, nil)

	result, err := f.pipeline.Run(context.Background(), []string{
		"https://domeggook.com/1",
		"https://unknown.example/3",
		"https://domeggook.com/2",
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 3)

	assert.False(t, result.Items[0].Success)
	assert.Contains(t, result.Items[0].Message, "product name not found")
	assert.False(t, result.Items[1].Success)
	assert.True(t, result.Items[2].Success)
	assert.Equal(t, 1, result.Succeeded())
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestPipeline_Run_UnsupportedFirstURL(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.pipeline.Run(context.Background(), []string{"https://unknown.example/1", "https://domeggook.com/2"})
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, models.ErrUnsupportedSource))
}

func TestPipeline_Run_LoginStopsBatch(t *testing.T) {
	f := newFixture(t, map[string]string{
		"https://domeggook.com/1": `<form><input type="password"></form>`,
		"https://domeggook.com/2": productPage,
	})

	result, err := f.pipeline.Run(context.Background(), []string{"https://domeggook.com/1", "https://domeggook.com/2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrLoginRequired))
	require.Len(t, result.Items, 1)
	assert.Contains(t, result.Items[0].Message, "sign in to Domeggook")
	f.enricher.AssertNotCalled(t, "Enrich", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	f := newFixture(t, map[string]string{"https://domeggook.com/12345": productPage})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.pipeline.Run(ctx, []string{"https://domeggook.com/12345"})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Empty(t, result.Items)
}

func TestPipeline_Run_EnrichmentFailures(t *testing.T) {
	f := newFixture(t, map[string]string{
		"https://domeggook.com/1": productPage,
		"https://domeggook.com/2": productPage,
	})
	f.enricher.On("Enrich", mock.Anything, mock.MatchedBy(func(raw *models.RawCrawlData) bool {
		return raw.URL == "https://domeggook.com/1"
	}), mock.Anything).Return(nil, &enrichment.InsufficientCreditsError{Balance: 3})
	f.enricher.On("Enrich", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, models.ErrEnrichmentFailed)

	result, err := f.pipeline.Run(context.Background(), []string{"https://domeggook.com/1", "https://domeggook.com/2"})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Contains(t, result.Items[0].Message, "top up")
	assert.Equal(t, models.ErrEnrichmentFailed.Error(), result.Items[1].Message)
	assert.Equal(t, 2, f.pacer.errors)
}

func TestPipeline_PolitenessOnlyForFlaggedVendors(t *testing.T) {
	f := newFixture(t, map[string]string{
		"https://domeggook.com/12345":                   productPage,
		"https://smartstore.naver.com/shop/products/77": smartstorePage,
	})
	f.enricher.On("Enrich", mock.Anything, mock.Anything, mock.Anything).Return(&models.EnrichedPayload{}, nil)

	result, err := f.pipeline.Run(context.Background(), []string{
		"https://domeggook.com/12345",
		"https://domeggook.com/12345",
		"https://smartstore.naver.com/shop/products/77",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Succeeded())
	assert.Equal(t, 1, f.pacer.resets)
	assert.Equal(t, 1, f.pacer.waits)
	assert.Equal(t, 3, f.pacer.successes)
	assert.Equal(t, 0, f.images.captures, "static documents cannot capture regions")
}

func TestPipeline_CollectListing(t *testing.T) {
	f := newFixture(t, map[string]string{
		"https://domeggook.com/list": `<ol class="lstItem">
			<li><div class="title"><a href="/1">One</a></div><div class="amt">1,000</div></li>
			<li><span class="badgeAd"></span><div class="title"><a href="/2">Ad</a></div></li>
		</ol>`,
	})

	entries, err := f.pipeline.CollectListing(context.Background(), "https://domeggook.com/list")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://domeggook.com/1", entries[0].URL)
}

// ctxEnricher fails like an HTTP client would when its context is done.
type ctxEnricher struct{}

func (ctxEnricher) Enrich(ctx context.Context, raw *models.RawCrawlData, detailImage string) (*models.EnrichedPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &models.EnrichedPayload{}, nil
}

func TestPipeline_Run_CancelDuringItemLetsItFinish(t *testing.T) {
	f := newFixture(t, map[string]string{
		"https://domeggook.com/1": productPage,
		"https://domeggook.com/2": productPage,
	})
	f.pipeline.deps.Enricher = ctxEnricher{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.images.onThumbnails = cancel

	result, err := f.pipeline.Run(ctx, []string{"https://domeggook.com/1", "https://domeggook.com/2"})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	require.Len(t, result.Items, 1, "the next URL is not started")
	assert.True(t, result.Items[0].Success, result.Items[0].Message)
	assert.Len(t, result.Items[0].Records, 1)
	assert.Len(t, f.certs.seen, 1)
}

func TestPipeline_Run_PolitenessDelayBetweenFirstURLs(t *testing.T) {
	const window = 60 * time.Millisecond
	f := newFixture(t, map[string]string{"https://smartstore.naver.com/shop/products/77": smartstorePage})
	f.enricher.On("Enrich", mock.Anything, mock.Anything, mock.Anything).Return(&models.EnrichedPayload{}, nil)
	f.pipeline.deps.Pacer = ratelimit.NewPacer(ratelimit.Window{Min: window, Max: window}, ratelimit.DefaultBackoff(), slog.Default())

	urls := []string{
		"https://smartstore.naver.com/shop/products/77",
		"https://smartstore.naver.com/shop/products/77",
	}
	for run := 0; run < 2; run++ {
		start := time.Now()
		result, err := f.pipeline.Run(context.Background(), urls)
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Equal(t, 2, result.Succeeded())
		assert.GreaterOrEqual(t, elapsed, window-5*time.Millisecond, "run %d", run)
		assert.Less(t, elapsed, 2*window, "run %d waits only between its own URLs", run)
	}
}
