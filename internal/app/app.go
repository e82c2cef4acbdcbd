// Package app wires configuration into the sourcing services shared by the
// server and the command-line runner.
package app

import (
	"log/slog"
	"os"
	"strings"

	"github.com/maltedev/product-sourcing/internal/assembler"
	"github.com/maltedev/product-sourcing/internal/browser"
	"github.com/maltedev/product-sourcing/internal/category"
	"github.com/maltedev/product-sourcing/internal/certification"
	"github.com/maltedev/product-sourcing/internal/config"
	"github.com/maltedev/product-sourcing/internal/document"
	"github.com/maltedev/product-sourcing/internal/enrichment"
	"github.com/maltedev/product-sourcing/internal/media"
	"github.com/maltedev/product-sourcing/internal/pipeline"
	"github.com/maltedev/product-sourcing/internal/ratelimit"
	"github.com/maltedev/product-sourcing/internal/source"
	"github.com/maltedev/product-sourcing/internal/vendor"
)

func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func BrowserOptions(cfg config.BrowserConfig) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Headless
	opts.Timeout = cfg.Timeout
	opts.UserAgent = cfg.UserAgent
	opts.ViewportWidth = cfg.ViewportWidth
	opts.ViewportHeight = cfg.ViewportHeight
	opts.AcceptLanguage = cfg.AcceptLanguage
	opts.TimezoneID = cfg.TimezoneID
	opts.Locale = cfg.Locale
	opts.ProxyServer = cfg.ProxyServer
	opts.UserDataDir = cfg.UserDataDir
	return opts
}

// NewPipeline builds every pipeline collaborator from cfg around nav.
func NewPipeline(cfg *config.Config, nav document.Navigator, logger *slog.Logger) *pipeline.Pipeline {
	fetcher := media.NewFetcher(cfg.Sourcing.ImageRateLimit, cfg.Sourcing.ImageFetchTimeout, cfg.Browser.UserAgent)
	images := media.NewAcquirer(fetcher, media.Options{
		OutputDir:     cfg.Sourcing.OutputDir,
		ThumbnailSize: cfg.Sourcing.ThumbnailSize,
		MaxSize:       cfg.Sourcing.MaxImageSize,
		DetailWidth:   cfg.Sourcing.DetailWidth,
		Optimize:      cfg.Sourcing.OptimizeImages,
	}, logger)

	enricher := enrichment.NewClient(enrichment.Config{
		BaseURL:   cfg.Enrichment.BaseURL,
		OCRURL:    cfg.Enrichment.OCRURL,
		APIKey:    cfg.Enrichment.APIKey,
		AccountID: cfg.Enrichment.AccountID,
		Timeout:   cfg.Enrichment.Timeout,
	}, logger)

	pacer := ratelimit.NewPacer(ratelimit.Window{
		Min: cfg.Sourcing.PolitenessMin,
		Max: cfg.Sourcing.PolitenessMax,
	}, ratelimit.DefaultBackoff(), logger)

	authority := certification.NewHTTPAuthority(cfg.Certification.AuthorityURL, cfg.Certification.APIKey, cfg.Certification.RateLimit)

	return pipeline.New(pipeline.Deps{
		Adapters:       source.NewSet(vendor.DefaultRegistry(), logger),
		Navigator:      nav,
		Images:         images,
		Enricher:       enricher,
		Certifications: certification.NewResolver(authority, logger),
		Categories:     category.NewMapper(cfg.Category.WorkbookPath, logger),
		Assembler:      assembler.New(AssemblerConfig(cfg.Business), logger),
		Pacer:          pacer,
	}, logger)
}

func AssemblerConfig(b config.BusinessConfig) assembler.Config {
	return assembler.Config{
		MarginRate:     b.MarginRate,
		SplitOptions:   b.SplitOptions,
		StockCap:       b.StockCap,
		ShippingType:   b.ShippingType,
		ShippingFee:    b.ShippingFee,
		Bundling:       b.Bundling,
		RemoteArea:     b.RemoteArea,
		RemoteAreaFee:  b.RemoteAreaFee,
		DeliveryDays:   b.DeliveryDays,
		DetailTemplate: b.DetailTemplate,
		DefaultOrigin:  b.DefaultOrigin,
		TaxType:        b.TaxType,
	}
}
