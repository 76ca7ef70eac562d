package ocr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/LastGentlman/chandra/internal/document"
	"github.com/LastGentlman/chandra/internal/images"
)

// Save writes resp into dir as {name}.md, {name}.html and
// {name}_metadata.json, plus one PNG per image when include_images was set.
// It returns the paths written.
func Save(dir, name string, resp *document.Response) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var written []string
	write := func(file string, data []byte) error {
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", file, err)
		}
		written = append(written, path)
		return nil
	}

	if err := write(name+".md", []byte(resp.Markdown)); err != nil {
		return written, err
	}
	if err := write(name+".html", []byte(resp.HTML)); err != nil {
		return written, err
	}

	meta, err := json.MarshalIndent(struct {
		Metadata document.Metadata `json:"metadata"`
	}{resp.Metadata}, "", "  ")
	if err != nil {
		return written, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := write(name+"_metadata.json", meta); err != nil {
		return written, err
	}

	if !resp.Metadata.IncludeImages {
		return written, nil
	}
	names := make([]string, 0, len(resp.Images))
	for n := range resp.Images {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		data, err := images.EncodePNG(resp.Images[n])
		if err != nil {
			return written, fmt.Errorf("encode %s: %w", n, err)
		}
		if err := write(n, data); err != nil {
			return written, err
		}
	}
	return written, nil
}
