// Package page assembles the per-page result from raw model output.
package page

import (
	"image"

	"github.com/LastGentlman/chandra/internal/images"
	"github.com/LastGentlman/chandra/internal/layout"
	"github.com/LastGentlman/chandra/internal/render"
)

// Result is the outcome of processing one page. Error is set on soft
// failure; the other fields then hold whatever could be derived and are
// never nil.
type Result struct {
	Raw        string                 `json:"raw"`
	Markdown   string                 `json:"markdown"`
	HTML       string                 `json:"html"`
	Chunks     []layout.Chunk         `json:"chunks"`
	PageBox    [4]int                 `json:"page_box"`
	TokenCount int                    `json:"token_count"`
	Images     map[string]image.Image `json:"-"`
	Error      string                 `json:"error,omitempty"`
}

// Failed reports whether the page carries a soft failure.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Input is everything needed to assemble one page.
type Input struct {
	Raw        string
	Image      image.Image
	TokenCount int
	// Err is the generation failure, if any. Assembly still runs on Raw.
	Err       error
	BBoxScale int
	Render    render.Options
}

// Assemble parses, renders and crops one page. Chunks and renderings only
// name crops that were actually produced.
func Assemble(in Input) Result {
	pageBox := layout.PageBox(in.Image)
	chunks := layout.ParseChunks(in.Raw, pageBox[2], pageBox[3], in.BBoxScale)
	crops := images.Extract(in.Image, chunks)
	for i := range chunks {
		if _, ok := crops[chunks[i].Image]; !ok {
			chunks[i].Image = ""
		}
	}

	opts := in.Render
	opts.Cropped = func(name string) bool {
		_, ok := crops[name]
		return ok
	}

	res := Result{
		Raw:        in.Raw,
		Markdown:   render.Markdown(in.Raw, opts),
		HTML:       render.HTML(in.Raw, opts),
		Chunks:     chunks,
		PageBox:    pageBox,
		TokenCount: max(in.TokenCount, 0),
		Images:     crops,
	}
	if in.Err != nil {
		res.Error = in.Err.Error()
	}
	return res
}
