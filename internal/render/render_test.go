package render

import (
	"strings"
	"testing"

	"github.com/LastGentlman/chandra/internal/layout"
)

const furniturePage = `<div data-bbox="0 0 1024 40" data-label="Page-Header">Running title</div>` +
	`<div data-bbox="0 50 1024 900" data-label="Text">Body</div>` +
	`<div data-bbox="0 980 1024 1024" data-label="Page-Footer">Page 3</div>`

func TestMarkdown(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "heading and inline emphasis",
			raw: `<div data-bbox="0 0 10 10" data-label="Section-Header"><h2>Intro</h2></div>` +
				`<div data-bbox="0 10 10 20" data-label="Text"><p>Some <b>bold</b> text.</p></div>`,
			want: "## Intro\n\nSome **bold** text.",
		},
		{
			name: "unordered list",
			raw:  `<div data-bbox="0 0 10 10" data-label="List-Group"><ul><li>one</li><li>two <i>it</i></li></ul></div>`,
			want: "- one\n- two *it*",
		},
		{
			name: "ordered list",
			raw:  `<div data-bbox="0 0 10 10" data-label="List-Group"><ol><li>a</li><li>b</li></ol></div>`,
			want: "1. a\n2. b",
		},
		{
			name: "inline math",
			raw:  `<div data-bbox="0 0 10 10" data-label="Text"><p>Energy <math>E=mc^2</math></p></div>`,
			want: "Energy $E=mc^2$",
		},
		{
			name: "link",
			raw:  `<div data-bbox="0 0 10 10" data-label="Text"><p><a href="https://example.com">site</a></p></div>`,
			want: "[site](https://example.com)",
		},
		{
			name: "code block keeps whitespace",
			raw:  "<div data-bbox=\"0 0 10 10\" data-label=\"Code-Block\"><pre>if x {\n    y()\n}</pre></div>",
			want: "```\nif x {\n    y()\n}\n```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Markdown(tt.raw, DefaultOptions()); got != tt.want {
				t.Errorf("Markdown() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarkdown_TableStaysHTML(t *testing.T) {
	raw := `<div data-bbox="0 0 10 10" data-label="Table"><table><tr><td>1</td></tr></table></div>`
	got := Markdown(raw, DefaultOptions())
	if !strings.HasPrefix(got, "<table>") || !strings.Contains(got, "<td>1</td>") {
		t.Errorf("Markdown() = %q, want an HTML table", got)
	}
}

func TestHeadersFooters(t *testing.T) {
	t.Run("excluded by default", func(t *testing.T) {
		opts := DefaultOptions()
		if got := Markdown(furniturePage, opts); got != "Body" {
			t.Errorf("Markdown() = %q, want %q", got, "Body")
		}
		if got := HTML(furniturePage, opts); got != "Body" {
			t.Errorf("HTML() = %q, want %q", got, "Body")
		}
	})

	t.Run("included on request", func(t *testing.T) {
		opts := Options{IncludeHeadersFooters: true}
		want := "Running title\n\nBody\n\nPage 3"
		if got := Markdown(furniturePage, opts); got != want {
			t.Errorf("Markdown() = %q, want %q", got, want)
		}
		if got := HTML(furniturePage, opts); got != "Running title\nBody\nPage 3" {
			t.Errorf("HTML() = %q", got)
		}
	})
}

func TestImageReferences(t *testing.T) {
	raw := `<div data-bbox="0 0 512 512" data-label="Figure"><img alt="A chart"/></div>`
	name := layout.ImageName(raw, 0)

	for _, opts := range []Options{{IncludeImages: true}, {IncludeImages: false}} {
		md := Markdown(raw, opts)
		if md != "![A chart]("+name+")" {
			t.Errorf("Markdown(include_images=%v) = %q", opts.IncludeImages, md)
		}
		h := HTML(raw, opts)
		if !strings.Contains(h, `src="`+name+`"`) || !strings.Contains(h, `alt="A chart"`) {
			t.Errorf("HTML(include_images=%v) = %q", opts.IncludeImages, h)
		}
	}
}

func TestImageAltFallsBackToText(t *testing.T) {
	raw := `<div data-bbox="0 0 10 10" data-label="Image">  a   logo </div>`
	want := "![a logo](" + layout.ImageName(raw, 0) + ")"
	if got := Markdown(raw, DefaultOptions()); got != want {
		t.Errorf("Markdown() = %q, want %q", got, want)
	}
}

func TestEmpty(t *testing.T) {
	if got := Markdown("", DefaultOptions()); got != "" {
		t.Errorf("Markdown(\"\") = %q", got)
	}
	if got := HTML("", DefaultOptions()); got != "" {
		t.Errorf("HTML(\"\") = %q", got)
	}
}

func TestDeterministic(t *testing.T) {
	opts := Options{IncludeHeadersFooters: true}
	if Markdown(furniturePage, opts) != Markdown(furniturePage, opts) {
		t.Error("Markdown is not deterministic")
	}
	if HTML(furniturePage, opts) != HTML(furniturePage, opts) {
		t.Error("HTML is not deterministic")
	}
}

func TestImageReferences_SkipsMissingCrops(t *testing.T) {
	raw := `<div data-label="Figure"><img alt="nobox"/></div>` +
		`<div data-bbox="10 10 10 50" data-label="Figure"><img alt="thin"/></div>` +
		`<div data-bbox="0 0 512 512" data-label="Figure"><img alt="kept"/></div>`
	kept := layout.ImageName(raw, 2)

	t.Run("no bbox is never referenced", func(t *testing.T) {
		got := Markdown(raw, DefaultOptions())
		if strings.Contains(got, "nobox") {
			t.Errorf("Markdown() = %q, references a block without bbox", got)
		}
		if !strings.Contains(got, "![thin]") || !strings.Contains(got, "![kept]("+kept+")") {
			t.Errorf("Markdown() = %q", got)
		}
	})

	t.Run("only cropped names are referenced", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Cropped = func(name string) bool { return name == kept }
		if got, want := Markdown(raw, opts), "![kept]("+kept+")"; got != want {
			t.Errorf("Markdown() = %q, want %q", got, want)
		}
		h := HTML(raw, opts)
		if strings.Count(h, "<img") != 1 || !strings.Contains(h, `src="`+kept+`"`) {
			t.Errorf("HTML() = %q", h)
		}
	})
}
