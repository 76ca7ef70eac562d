package ingest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
)

// Allowed upload types.
var (
	DefaultAllowedExtensions = []string{
		".pdf", ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".webp", ".heic", ".heif",
	}
	DefaultAllowedMIMETypes = []string{
		"application/pdf", "image/png", "image/jpeg", "image/tiff", "image/bmp",
		"image/webp", "image/heic", "image/heif",
	}
)

// UploadPolicy is the set of accepted upload types.
type UploadPolicy struct {
	Extensions []string
	MIMETypes  []string
}

// DefaultUploadPolicy accepts the default extensions and MIME types.
func DefaultUploadPolicy() UploadPolicy {
	return UploadPolicy{Extensions: DefaultAllowedExtensions, MIMETypes: DefaultAllowedMIMETypes}
}

// Validate checks filename's extension and the MIME type sniffed from the
// first bytes of the file.
func (p UploadPolicy) Validate(filename string, head []byte) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("%w: empty filename", ErrUnsupportedFile)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !slices.Contains(p.Extensions, ext) {
		return fmt.Errorf("%w: extension %q", ErrUnsupportedFile, ext)
	}
	mime := SniffMIME(head)
	if !slices.Contains(p.MIMETypes, mime) {
		return fmt.Errorf("%w: content type %q", ErrUnsupportedFile, mime)
	}
	return nil
}

// SniffMIME detects the content type from magic bytes. TIFF and HEIF are
// checked directly since net/http does not know them.
func SniffMIME(b []byte) string {
	switch {
	case bytes.HasPrefix(b, []byte("II*\x00")), bytes.HasPrefix(b, []byte("MM\x00*")):
		return "image/tiff"
	case len(b) >= 12 && string(b[4:8]) == "ftyp":
		switch string(b[8:12]) {
		case "heic", "heix", "hevc", "hevx", "heim", "heis":
			return "image/heic"
		case "mif1", "msf1":
			return "image/heif"
		}
	}
	mime := http.DetectContentType(b)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return mime
}

// DecodeBase64Image decodes a bare or data URI base64 image.
func DecodeBase64Image(s string, maxPixels int) (image.Image, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if idx := strings.IndexByte(s, ','); idx > 0 {
			s = s[idx+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// URL-safe alphabet as a fallback
		var err2 error
		if data, err2 = base64.URLEncoding.DecodeString(s); err2 != nil {
			return nil, fmt.Errorf("%w: invalid base64: %v", ErrUnsupportedFile, err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedFile)
	}
	return Decode(bytes.NewReader(data), maxPixels)
}
