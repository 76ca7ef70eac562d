// Package render turns raw layout output into Markdown and HTML.
package render

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/LastGentlman/chandra/internal/layout"
)

// Options controls which blocks are rendered.
type Options struct {
	// IncludeHeadersFooters keeps Page-Header and Page-Footer blocks.
	IncludeHeadersFooters bool
	// IncludeImages only gates image payloads downstream. Image blocks are
	// referenced by name in both renderings either way.
	IncludeImages bool
	// Cropped, when set, reports whether a crop exists under name. Image
	// blocks without one are left out instead of pointing at nothing.
	Cropped func(name string) bool
}

// DefaultOptions returns the rendering defaults.
func DefaultOptions() Options {
	return Options{IncludeImages: true}
}

// HTML renders the visible blocks of raw output, one block per line.
// Image and Figure blocks become <img> tags pointing at their crop names.
func HTML(raw string, opts Options) string {
	var parts []string
	for _, b := range visibleBlocks(raw, opts) {
		var s string
		if b.Label.IsVisual() {
			name, ok := imageRef(raw, b, opts)
			if !ok {
				continue
			}
			s = imageTag(name, imageAlt(b.Node))
		} else {
			s = b.InnerHTML()
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// Markdown renders the visible blocks of raw output as Markdown, separated by
// blank lines. Tables are kept as HTML.
func Markdown(raw string, opts Options) string {
	var parts []string
	for _, b := range visibleBlocks(raw, opts) {
		var s string
		if b.Label.IsVisual() {
			name, ok := imageRef(raw, b, opts)
			if !ok {
				continue
			}
			s = "![" + escapeAlt(imageAlt(b.Node)) + "](" + name + ")"
		} else {
			s = toMarkdown(b.Node)
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func visibleBlocks(raw string, opts Options) []layout.Block {
	blocks := layout.Parse(raw)
	out := blocks[:0:0]
	for _, b := range blocks {
		if b.Label.IsHeaderFooter() && !opts.IncludeHeadersFooters {
			continue
		}
		out = append(out, b)
	}
	return out
}

// imageRef names the crop for a visual block. Blocks without a usable bbox
// never get a crop.
func imageRef(raw string, b layout.Block, opts Options) (string, bool) {
	if !b.Valid {
		return "", false
	}
	name := layout.ImageName(raw, b.Index)
	if opts.Cropped != nil && !opts.Cropped(name) {
		return "", false
	}
	return name, true
}

func imageTag(name, alt string) string {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     "img",
		DataAtom: atom.Img,
		Attr: []html.Attribute{
			{Key: "src", Val: name},
			{Key: "alt", Val: alt},
		},
	}
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

// imageAlt prefers an alt attribute the model wrote, then the block's text.
func imageAlt(n *html.Node) string {
	var alt string
	var find func(*html.Node) bool
	find = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			if v := attr(n, "alt"); v != "" {
				alt = v
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if find(c) {
				return true
			}
		}
		return false
	}
	if find(n) {
		return collapse(alt)
	}
	return collapse(textContent(n))
}

func escapeAlt(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
