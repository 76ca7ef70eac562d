// Package layout parses the HTML layout blocks emitted by the ocr_layout
// prompt into typed, bounding-boxed chunks.
//
// Raw output is a sequence of top-level elements such as
//
//	<div data-bbox="x0 y0 x1 y1" data-label="Text">...</div>
//
// where coordinates are expressed on a fixed grid (the bbox scale) and are
// mapped onto the page image's pixel frame by ParseChunks.
package layout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultBBoxScale is the grid size the model expresses coordinates on.
const DefaultBBoxScale = 1024

// Block is one top-level region of raw output.
type Block struct {
	// Index is the position among top-level blocks, stable for a given raw text.
	Index int
	Label Label
	// Coords holds the unscaled bbox. Valid is false when the attribute was
	// missing or had fewer than four numbers.
	Coords [4]float64
	Valid  bool
	// Node is the parsed element; its children are the block's content.
	Node *html.Node
}

// Chunk is a typed layout region in page pixel coordinates.
type Chunk struct {
	BBox    [4]int `json:"bbox"`
	Label   Label  `json:"label"`
	Content string `json:"content"`
	// Image names the crop extracted for this chunk, if any.
	Image string `json:"image,omitempty"`
}

// Parse splits raw output into blocks in model reading order.
// Truncated input is tolerated: every element the HTML parser recovers is
// returned, including a final unterminated block with partial content.
func Parse(raw string) []Block {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(raw), body)
	if err != nil {
		return nil
	}

	var blocks []Block
	for _, n := range nodes {
		switch n.Type {
		case html.ElementNode:
		case html.TextNode:
			if strings.TrimSpace(n.Data) == "" {
				continue
			}
			// Stray text outside any block renders as plain text.
			wrapper := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
			wrapper.AppendChild(n)
			n = wrapper
		default:
			continue
		}

		b := Block{
			Index: len(blocks),
			Label: NormalizeLabel(attr(n, "data-label")),
			Node:  n,
		}
		b.Coords, b.Valid = parseBBox(attr(n, "data-bbox"))
		blocks = append(blocks, b)
	}
	return blocks
}

// ParseChunks parses raw output and maps every block with a usable bbox onto
// a width x height page. bboxScale <= 0 selects DefaultBBoxScale.
func ParseChunks(raw string, width, height, bboxScale int) []Chunk {
	blocks := Parse(raw)
	chunks := make([]Chunk, 0, len(blocks))
	for _, b := range blocks {
		if !b.Valid {
			continue
		}
		c := Chunk{
			BBox:    b.Scale(width, height, bboxScale),
			Label:   b.Label,
			Content: b.InnerHTML(),
		}
		if b.Label.IsExtractable() {
			c.Image = ImageName(raw, b.Index)
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// Scale maps the block's coordinates onto a width x height page and clamps
// the result into the page box.
func (b Block) Scale(width, height, bboxScale int) [4]int {
	if bboxScale <= 0 {
		bboxScale = DefaultBBoxScale
	}
	s := float64(bboxScale)
	x0 := clamp(int(b.Coords[0]/s*float64(width)), width)
	y0 := clamp(int(b.Coords[1]/s*float64(height)), height)
	x1 := clamp(int(b.Coords[2]/s*float64(width)), width)
	y1 := clamp(int(b.Coords[3]/s*float64(height)), height)
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return [4]int{x0, y0, x1, y1}
}

// InnerHTML renders the block's content without its wrapping element.
func (b Block) InnerHTML() string {
	if b.Node == nil {
		return ""
	}
	var sb strings.Builder
	for c := b.Node.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return strings.TrimSpace(sb.String())
}

// ImageName returns the deterministic crop name for the block at index.
// The same raw text always yields the same names.
func ImageName(raw string, index int) string {
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s_%d_img.png", hex.EncodeToString(sum[:])[:16], index)
}

// PageBox returns [0, 0, width, height] for an image.
func PageBox(img image.Image) [4]int {
	if img == nil {
		return [4]int{}
	}
	b := img.Bounds()
	return [4]int{0, 0, b.Dx(), b.Dy()}
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// parseBBox accepts "x0 y0 x1 y1", "x0,y0,x1,y1" and "[x0, y0, x1, y1]".
// Non-finite coordinates make the bbox unusable.
func parseBBox(s string) ([4]float64, bool) {
	var out [4]float64
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '[' || r == ']' || r == '\t' || r == '\n'
	})
	if len(fields) < 4 {
		return out, false
	}
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return out, false
		}
		out[i] = v
	}
	return out, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
