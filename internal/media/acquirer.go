// Package media downloads, normalizes and files product imagery.
package media

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/maltedev/product-sourcing/internal/document"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/vendor"
)

// Slots are filled in thumbnail order; a failed download leaves its slot empty.
var Slots = []string{"primary-1", "primary-2", "secondary-1", "secondary-2"}

const maxCapturePasses = 40

var unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

type Options struct {
	OutputDir string
	// ThumbnailSize is the square envelope thumbnails are cover-fit into.
	ThumbnailSize int
	// MaxSize bounds both thumbnail edges after the cover fit.
	MaxSize     int
	DetailWidth int
	Optimize    bool
}

func DefaultOptions() Options {
	return Options{
		OutputDir:     "output",
		ThumbnailSize: 1000,
		MaxSize:       1000,
		DetailWidth:   860,
		Optimize:      true,
	}
}

// ImageFetcher returns raw image bytes for a URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Acquirer struct {
	fetcher ImageFetcher
	opts    Options
	now     func() time.Time
	logger  *slog.Logger
}

func NewAcquirer(fetcher ImageFetcher, opts Options, logger *slog.Logger) *Acquirer {
	return &Acquirer{
		fetcher: fetcher,
		opts:    opts,
		now:     time.Now,
		logger:  logger.With("component", "media"),
	}
}

// Directory returns the per-product image directory:
// <output>/<YYYYMMDD>/<prefix>_<code>, or <prefix>_<name>_<HHMMSS> without a code.
func (a *Acquirer) Directory(desc *vendor.Descriptor, info *models.RawBasicInfo) string {
	now := a.now()
	var leaf string
	if code := sanitize(info.ProductCode, 40); code != "" {
		leaf = fmt.Sprintf("%s_%s", desc.FilePrefix, code)
	} else {
		leaf = fmt.Sprintf("%s_%s_%s", desc.FilePrefix, sanitize(info.Name, 30), now.Format("150405"))
	}
	return filepath.Join(a.opts.OutputDir, now.Format("20060102"), leaf)
}

func sanitize(s string, maxRunes int) string {
	s = strings.Trim(unsafeNameChars.ReplaceAllString(strings.TrimSpace(s), "_"), "_")
	if r := []rune(s); len(r) > maxRunes {
		s = string(r[:maxRunes])
	}
	return s
}

// SaveThumbnails downloads up to len(Slots) images into their slots and
// returns the written paths in slot order.
func (a *Acquirer) SaveThumbnails(ctx context.Context, dir string, urls []string) []string {
	if err := os.MkdirAll(dir, 0755); err != nil {
		a.logger.Error("failed to create image directory", "dir", dir, "error", err)
		return nil
	}

	base := filepath.Base(dir)
	var saved []string
	for i, url := range urls {
		if i >= len(Slots) {
			break
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.jpg", base, Slots[i]))
		if err := a.saveThumbnail(ctx, url, path); err != nil {
			a.logger.Warn("thumbnail skipped", "slot", Slots[i], "url", url, "error", err)
			continue
		}
		saved = append(saved, path)
	}
	return saved
}

func (a *Acquirer) saveThumbnail(ctx context.Context, url, path string) error {
	data, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	img, err := decode(data)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrImageFetch, err)
	}
	return a.write(normalizeThumbnail(img, a.opts.ThumbnailSize, a.opts.MaxSize), path)
}

// SaveDetailImage downloads the detail image and scales it to the detail width.
func (a *Acquirer) SaveDetailImage(ctx context.Context, dir, url string) (string, error) {
	data, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	img, err := decode(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrImageFetch, err)
	}
	return a.writeDetail(dir, constrainWidth(img, a.opts.DetailWidth))
}

// CaptureDetail renders the region matched by selector in viewport-height
// passes, stitches them vertically and center-crops to width.
func (a *Acquirer) CaptureDetail(ctx context.Context, capturer document.RegionCapturer, dir, selector string, width int) (string, error) {
	_, height, err := capturer.RegionSize(ctx, selector)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrImageFetch, err)
	}
	if height <= 0 {
		return "", fmt.Errorf("%w: detail region %s has no height", models.ErrImageFetch, selector)
	}

	step := float64(capturer.ViewportHeight())
	if step <= 0 {
		step = height
	}
	passes := int(math.Ceil(height / step))
	if passes > maxCapturePasses {
		a.logger.Warn("detail region truncated", "selector", selector, "height", height)
		passes = maxCapturePasses
	}

	parts := make([]image.Image, 0, passes)
	for i := 0; i < passes; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		offset := float64(i) * step
		png, err := capturer.CaptureRegion(ctx, selector, offset, math.Min(step, height-offset))
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrImageFetch, err)
		}
		part, err := decode(png)
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrImageFetch, err)
		}
		parts = append(parts, part)
	}

	a.logger.Debug("captured detail region", "selector", selector, "passes", len(parts))
	return a.writeDetail(dir, cropToWidth(stitch(parts), width))
}

func (a *Acquirer) writeDetail(dir string, img image.Image) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(dir)+"_detail.jpg")
	if err := a.write(img, path); err != nil {
		return "", err
	}
	return path, nil
}

func (a *Acquirer) write(img image.Image, path string) error {
	if err := imaging.Save(img, path, imaging.JPEGQuality(jpegQuality(a.opts.Optimize))); err != nil {
		return fmt.Errorf("failed to save image %s: %w", path, err)
	}
	return nil
}
