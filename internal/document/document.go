// Package document merges per-page results into one response.
package document

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/LastGentlman/chandra/internal/images"
	"github.com/LastGentlman/chandra/internal/layout"
	"github.com/LastGentlman/chandra/internal/page"
)

// PageSeparator joins per-page markdown and HTML.
const PageSeparator = "\n\n"

// ErrNoPages is returned when there is nothing to aggregate.
var ErrNoPages = errors.New("no pages to aggregate")

// Meta carries request-level fields echoed into the metadata.
type Meta struct {
	Method                string
	IncludeImages         bool
	IncludeHeadersFooters bool
}

// PageMeta summarizes one page.
type PageMeta struct {
	PageNum    int    `json:"page_num"`
	TokenCount int    `json:"token_count"`
	NumChunks  int    `json:"num_chunks"`
	NumImages  int    `json:"num_images"`
	PageBox    [4]int `json:"page_box"`
	Error      string `json:"error,omitempty"`
}

// Metadata summarizes the whole document.
type Metadata struct {
	NumPages              int        `json:"num_pages"`
	TotalTokenCount       int        `json:"total_token_count"`
	TotalChunks           int        `json:"total_chunks"`
	TotalImages           int        `json:"total_images"`
	Pages                 []PageMeta `json:"pages"`
	Method                string     `json:"method"`
	IncludeImages         bool       `json:"include_images"`
	IncludeHeadersFooters bool       `json:"include_headers_footers"`
}

// Response is the document-level result.
type Response struct {
	Markdown string         `json:"markdown"`
	HTML     string         `json:"html"`
	Chunks   []layout.Chunk `json:"chunks"`
	// Images holds every crop, keyed by its document-wide name.
	Images   map[string]image.Image `json:"-"`
	Metadata Metadata               `json:"metadata"`
}

// Aggregate merges pages in order. With more than one page every image name
// becomes page_{n}_{name} (n 1-indexed), and the references in chunks,
// markdown and HTML follow it. A single page keeps its names.
func Aggregate(pages []page.Result, meta Meta) (*Response, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	multi := len(pages) > 1
	resp := &Response{
		Chunks: make([]layout.Chunk, 0),
		Images: make(map[string]image.Image),
		Metadata: Metadata{
			NumPages:              len(pages),
			Pages:                 make([]PageMeta, 0, len(pages)),
			Method:                meta.Method,
			IncludeImages:         meta.IncludeImages,
			IncludeHeadersFooters: meta.IncludeHeadersFooters,
		},
	}

	markdown := make([]string, 0, len(pages))
	htmls := make([]string, 0, len(pages))

	for i, p := range pages {
		pageNum := i + 1
		rename := func(name string) string {
			if !multi || name == "" {
				return name
			}
			return PrefixName(pageNum, name)
		}

		md, h := p.Markdown, p.HTML
		if multi {
			if names := imageNames(p); len(names) > 0 {
				pairs := make([]string, 0, 2*len(names))
				for _, name := range names {
					pairs = append(pairs, name, rename(name))
				}
				r := strings.NewReplacer(pairs...)
				md, h = r.Replace(md), r.Replace(h)
			}
		}
		markdown = append(markdown, md)
		htmls = append(htmls, h)

		for _, c := range p.Chunks {
			c.Image = rename(c.Image)
			resp.Chunks = append(resp.Chunks, c)
		}
		for name, img := range p.Images {
			resp.Images[rename(name)] = img
		}

		resp.Metadata.Pages = append(resp.Metadata.Pages, PageMeta{
			PageNum:    pageNum,
			TokenCount: p.TokenCount,
			NumChunks:  len(p.Chunks),
			NumImages:  len(p.Images),
			PageBox:    p.PageBox,
			Error:      p.Error,
		})
		resp.Metadata.TotalTokenCount += p.TokenCount
		resp.Metadata.TotalChunks += len(p.Chunks)
		resp.Metadata.TotalImages += len(p.Images)
	}

	resp.Markdown = strings.Join(markdown, PageSeparator)
	resp.HTML = strings.Join(htmls, PageSeparator)
	return resp, nil
}

// imageNames collects every image name a page refers to, from its crops and
// its chunks, sorted.
func imageNames(p page.Result) []string {
	seen := make(map[string]bool, len(p.Images))
	for name := range p.Images {
		seen[name] = true
	}
	for _, c := range p.Chunks {
		if c.Image != "" {
			seen[c.Image] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PrefixName namespaces an image name with its 1-indexed page number.
func PrefixName(pageNum int, name string) string {
	return fmt.Sprintf("page_%d_%s", pageNum, name)
}

// CheckTotals verifies the document totals equal the per-page sums.
func (r *Response) CheckTotals() error {
	var tokens, chunks, imgs int
	for _, p := range r.Metadata.Pages {
		tokens += p.TokenCount
		chunks += p.NumChunks
		imgs += p.NumImages
	}
	m := r.Metadata
	var errs []error
	if m.NumPages != len(m.Pages) {
		errs = append(errs, fmt.Errorf("num_pages %d != %d page records", m.NumPages, len(m.Pages)))
	}
	if m.TotalTokenCount != tokens {
		errs = append(errs, fmt.Errorf("total_token_count %d != page sum %d", m.TotalTokenCount, tokens))
	}
	if m.TotalChunks != chunks || len(r.Chunks) != chunks {
		errs = append(errs, fmt.Errorf("total_chunks %d != page sum %d (flattened %d)", m.TotalChunks, chunks, len(r.Chunks)))
	}
	if m.TotalImages != imgs {
		errs = append(errs, fmt.Errorf("total_images %d != page sum %d", m.TotalImages, imgs))
	}
	return errors.Join(errs...)
}

// FailedPages returns the 1-indexed numbers of pages with a soft failure.
func (r *Response) FailedPages() []int {
	var out []int
	for _, p := range r.Metadata.Pages {
		if p.Error != "" {
			out = append(out, p.PageNum)
		}
	}
	return out
}

// EncodeImages converts images to PNG data URIs. When include is false the
// payloads are withheld and an empty map is returned.
func EncodeImages(imgs map[string]image.Image, include bool) (map[string]string, error) {
	out := make(map[string]string)
	if !include {
		return out, nil
	}
	names := make([]string, 0, len(imgs))
	for name := range imgs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		uri, err := images.DataURI(imgs[name])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out[name] = uri
	}
	return out, nil
}
