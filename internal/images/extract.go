// Package images crops layout regions out of page images and encodes them
// for transport.
package images

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/LastGentlman/chandra/internal/layout"
)

// Extract crops every chunk that names an image out of src. Boxes are
// clipped to the image bounds; regions that end up empty are skipped.
func Extract(src image.Image, chunks []layout.Chunk) map[string]image.Image {
	out := make(map[string]image.Image)
	if src == nil {
		return out
	}
	for _, c := range chunks {
		if c.Image == "" {
			continue
		}
		if _, dup := out[c.Image]; dup {
			continue
		}
		if img := Crop(src, c.BBox); img != nil {
			out[c.Image] = img
		}
	}
	return out
}

// Crop copies box (in page coordinates relative to src's origin) into a new
// RGBA image. It returns nil when the clipped box is empty.
func Crop(src image.Image, box [4]int) image.Image {
	bounds := src.Bounds()
	rect := image.Rect(box[0], box[1], box[2], box[3]).Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)
	return dst
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURI encodes img as a base64 PNG data URI.
func DataURI(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}
