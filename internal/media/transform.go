package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Quality settings
const (
	qualityOptimized = 70
	qualityFull      = 100
)

func jpegQuality(optimize bool) int {
	if optimize {
		return qualityOptimized
	}
	return qualityFull
}

func decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// normalizeThumbnail cover-fits img into a size x size square, then bounds it
// by maxSize without upscaling.
func normalizeThumbnail(img image.Image, size, maxSize int) image.Image {
	out := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)
	if maxSize > 0 && size > maxSize {
		out = imaging.Fit(out, maxSize, maxSize, imaging.Lanczos)
	}
	return out
}

// constrainWidth scales img down to maxWidth, keeping the aspect ratio.
func constrainWidth(img image.Image, maxWidth int) image.Image {
	if maxWidth <= 0 || img.Bounds().Dx() <= maxWidth {
		return img
	}
	return imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
}

// stitch stacks parts vertically on a white canvas as wide as the widest part.
func stitch(parts []image.Image) image.Image {
	width, height := 0, 0
	for _, p := range parts {
		if w := p.Bounds().Dx(); w > width {
			width = w
		}
		height += p.Bounds().Dy()
	}

	canvas := imaging.New(width, height, color.White)
	y := 0
	for _, p := range parts {
		canvas = imaging.Paste(canvas, p, image.Pt(0, y))
		y += p.Bounds().Dy()
	}
	return canvas
}

// cropToWidth center-crops img horizontally to width.
func cropToWidth(img image.Image, width int) image.Image {
	if width <= 0 || img.Bounds().Dx() <= width {
		return img
	}
	return imaging.CropCenter(img, width, img.Bounds().Dy())
}
