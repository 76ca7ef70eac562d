// Package ingest turns uploaded files into page images.
//
// Raster images are decoded in process. PDFs are counted with pdfcpu and
// rendered page by page with pdftoppm (poppler-utils).
package ingest

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	// Registered decoders for the raster formats we accept.
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Defaults for LoadOptions.
const (
	DefaultImageDPI       = 192
	DefaultMinImageDim    = 1536
	DefaultMinPDFImageDim = 1024
	DefaultMaxImagePixels = 80_000_000
)

var (
	// ErrUnsupportedFile is returned for files we cannot decode.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrNoPages is returned when a file or page range selects nothing.
	ErrNoPages = errors.New("no pages selected")
	// ErrImageTooLarge is returned when an image exceeds the pixel limit.
	ErrImageTooLarge = errors.New("image exceeds pixel limit")
)

// LoadOptions controls how a file becomes page images.
type LoadOptions struct {
	// PageRange selects PDF pages, e.g. "1-5,7,9-12". Empty means all.
	PageRange string
	// ImageDPI is the PDF render resolution.
	ImageDPI int
	// MinImageDim is the longest side raster images are upscaled to.
	MinImageDim int
	// MinPDFImageDim is the longest side rendered PDF pages are upscaled to.
	MinPDFImageDim int
	// MaxImagePixels rejects images with more pixels than this.
	MaxImagePixels int
	Logger         *slog.Logger
}

func (o *LoadOptions) applyDefaults() {
	if o.ImageDPI <= 0 {
		o.ImageDPI = DefaultImageDPI
	}
	if o.MinImageDim <= 0 {
		o.MinImageDim = DefaultMinImageDim
	}
	if o.MinPDFImageDim <= 0 {
		o.MinPDFImageDim = DefaultMinPDFImageDim
	}
	if o.MaxImagePixels <= 0 {
		o.MaxImagePixels = DefaultMaxImagePixels
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// LoadFile returns the page images of path in page order. A raster image
// yields exactly one page.
func LoadFile(ctx context.Context, path string, opts LoadOptions) ([]image.Image, error) {
	opts.applyDefaults()

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return loadPDF(ctx, path, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	img, err := Decode(f, opts.MaxImagePixels)
	if err != nil {
		return nil, err
	}
	return []image.Image{Upscale(img, opts.MinImageDim)}, nil
}

// Decode decodes one raster image, checking its size against maxPixels
// before the pixel data is read.
func Decode(r io.ReadSeeker, maxPixels int) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d > %d", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return img, nil
}

// Upscale enlarges img so its longest side is minDim, keeping the aspect
// ratio. Images already that large are returned unchanged.
func Upscale(img image.Image, minDim int) image.Image {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if minDim <= 0 || longest == 0 || longest >= minDim {
		return img
	}
	scale := float64(minDim) / float64(longest)
	w := int(math.Round(float64(b.Dx()) * scale))
	h := int(math.Round(float64(b.Dy()) * scale))
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
