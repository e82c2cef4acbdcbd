package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/vendor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 200, A: 255}), imaging.PNG))
	return buf.Bytes()
}

type fakeFetcher struct {
	images map[string][]byte
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, ok := f.images[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s returned status 404", models.ErrImageFetch, url)
	}
	return data, nil
}

type fakeCapturer struct {
	width, height float64
	viewport      int
	calls         []float64
}

func (c *fakeCapturer) ViewportHeight() int { return c.viewport }

func (c *fakeCapturer) RegionSize(ctx context.Context, selector string) (float64, float64, error) {
	return c.width, c.height, nil
}

func (c *fakeCapturer) CaptureRegion(ctx context.Context, selector string, offset, height float64) ([]byte, error) {
	c.calls = append(c.calls, offset)
	var buf bytes.Buffer
	err := imaging.Encode(&buf, imaging.New(int(c.width), int(height), color.Black), imaging.PNG)
	return buf.Bytes(), err
}

func newTestAcquirer(t *testing.T, fetcher ImageFetcher) *Acquirer {
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.ThumbnailSize = 120
	opts.MaxSize = 100
	opts.DetailWidth = 300
	a := NewAcquirer(fetcher, opts, slog.Default())
	a.now = func() time.Time { return time.Date(2026, 3, 5, 14, 7, 9, 0, time.UTC) }
	return a
}

func TestAcquirer_Directory(t *testing.T) {
	a := newTestAcquirer(t, &fakeFetcher{})
	desc := &vendor.Descriptor{FilePrefix: "DMG"}

	dir := a.Directory(desc, &models.RawBasicInfo{ProductCode: "12345", Name: "Mug"})
	assert.Equal(t, filepath.Join(a.opts.OutputDir, "20260305", "DMG_12345"), dir)

	dir = a.Directory(desc, &models.RawBasicInfo{Name: "Steel / Mug 500ml"})
	assert.Equal(t, filepath.Join(a.opts.OutputDir, "20260305", "DMG_Steel_Mug_500ml_140709"), dir)
}

func TestAcquirer_SaveThumbnails(t *testing.T) {
	fetcher := &fakeFetcher{images: map[string][]byte{
		"https://img/1.png": pngBytes(t, 400, 200),
		"https://img/3.png": pngBytes(t, 50, 80),
	}}
	a := newTestAcquirer(t, fetcher)
	dir := filepath.Join(a.opts.OutputDir, "p")

	saved := a.SaveThumbnails(context.Background(), dir, []string{
		"https://img/1.png",
		"https://img/2.png",
		"https://img/3.png",
	})
	require.Equal(t, []string{
		filepath.Join(dir, "p_primary-1.jpg"),
		filepath.Join(dir, "p_secondary-1.jpg"),
	}, saved)

	for _, path := range saved {
		img, err := imaging.Open(path)
		require.NoError(t, err)
		assert.Equal(t, image.Pt(100, 100), img.Bounds().Size())
	}
}

func TestAcquirer_SaveDetailImage(t *testing.T) {
	fetcher := &fakeFetcher{images: map[string][]byte{"https://img/d.png": pngBytes(t, 600, 1200)}}
	a := newTestAcquirer(t, fetcher)
	dir := filepath.Join(a.opts.OutputDir, "p")

	path, err := a.SaveDetailImage(context.Background(), dir, "https://img/d.png")
	require.NoError(t, err)

	img, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(300, 600), img.Bounds().Size())

	_, err = a.SaveDetailImage(context.Background(), dir, "https://img/missing.png")
	assert.True(t, errors.Is(err, models.ErrImageFetch))
}

func TestAcquirer_CaptureDetail(t *testing.T) {
	a := newTestAcquirer(t, &fakeFetcher{})
	capturer := &fakeCapturer{width: 1000, height: 250, viewport: 100}

	path, err := a.CaptureDetail(context.Background(), capturer, filepath.Join(a.opts.OutputDir, "p"), "div.detail", 800)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 100, 200}, capturer.calls)

	img, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(800, 250), img.Bounds().Size())
}

func TestJPEGQuality(t *testing.T) {
	assert.Equal(t, 70, jpegQuality(true))
	assert.Equal(t, 100, jpegQuality(false))
}

func TestFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.png" {
			w.Write([]byte("image-bytes"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher(100, 5*time.Second, "test-agent")

	data, err := f.Fetch(context.Background(), server.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)

	_, err = f.Fetch(context.Background(), server.URL+"/missing.png")
	assert.True(t, errors.Is(err, models.ErrImageFetch))
}
