package layout

import (
	"reflect"
	"strings"
	"testing"
)

const twoBlockPage = `<div data-bbox="0 0 1024 100" data-label="Text"><p>Hello world</p></div>` +
	`<div data-bbox="0 0 512 512" data-label="Figure"><img alt="A chart"/></div>`

func TestParseChunks(t *testing.T) {
	chunks := ParseChunks(twoBlockPage, 2048, 2048, 1024)
	if len(chunks) != 2 {
		t.Fatalf("ParseChunks() returned %d chunks, want 2", len(chunks))
	}

	if chunks[0].Label != LabelText {
		t.Errorf("chunks[0].Label = %q, want %q", chunks[0].Label, LabelText)
	}
	if chunks[0].Content != "<p>Hello world</p>" {
		t.Errorf("chunks[0].Content = %q", chunks[0].Content)
	}
	if chunks[0].Image != "" {
		t.Errorf("text chunk should not reference an image, got %q", chunks[0].Image)
	}

	fig := chunks[1]
	if fig.Label != LabelFigure {
		t.Errorf("chunks[1].Label = %q, want %q", fig.Label, LabelFigure)
	}
	if want := [4]int{0, 0, 1024, 1024}; fig.BBox != want {
		t.Errorf("chunks[1].BBox = %v, want %v", fig.BBox, want)
	}
	if fig.Image != ImageName(twoBlockPage, 1) {
		t.Errorf("chunks[1].Image = %q, want %q", fig.Image, ImageName(twoBlockPage, 1))
	}
}

func TestParseChunks_Idempotent(t *testing.T) {
	a := ParseChunks(twoBlockPage, 800, 600, 1024)
	b := ParseChunks(twoBlockPage, 800, 600, 1024)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("repeated parses differ:\n%v\n%v", a, b)
	}
}

func TestParseChunks_Containment(t *testing.T) {
	raw := `<div data-bbox="-20 -5 1100 2000" data-label="Image"></div>` +
		`<div data-bbox="900 900 100 100" data-label="Text">swapped</div>`
	const w, h = 300, 200

	for i, c := range ParseChunks(raw, w, h, 1024) {
		b := c.BBox
		if b[0] < 0 || b[1] < 0 || b[2] > w || b[3] > h {
			t.Errorf("chunk %d bbox %v escapes page box", i, b)
		}
		if b[0] > b[2] || b[1] > b[3] {
			t.Errorf("chunk %d bbox %v has inverted corners", i, b)
		}
	}
}

func TestParseChunks_Truncated(t *testing.T) {
	t.Run("unterminated final block keeps partial content", func(t *testing.T) {
		raw := `<div data-bbox="0 0 10 10" data-label="Text">done</div>` +
			`<div data-bbox="10 10 20 20" data-label="Text"><p>partial sent`
		chunks := ParseChunks(raw, 100, 100, 1024)
		if len(chunks) != 2 {
			t.Fatalf("got %d chunks, want 2", len(chunks))
		}
		if !strings.Contains(chunks[1].Content, "partial sent") {
			t.Errorf("chunks[1].Content = %q, want partial text", chunks[1].Content)
		}
	})

	t.Run("cut inside a tag keeps earlier blocks", func(t *testing.T) {
		raw := `<div data-bbox="0 0 10 10" data-label="Caption">first</div><div data-bb`
		chunks := ParseChunks(raw, 100, 100, 1024)
		if len(chunks) < 1 {
			t.Fatal("expected the complete block to survive")
		}
		if chunks[0].Content != "first" || chunks[0].Label != LabelCaption {
			t.Errorf("chunks[0] = %+v", chunks[0])
		}
	})

	t.Run("non-finite bbox is dropped", func(t *testing.T) {
		raw := `<div data-bbox="NaN 0 10 10" data-label="Text">nan</div>` +
			`<div data-bbox="0 0 +Inf 10" data-label="Figure">inf</div>` +
			`<div data-bbox="0 0 10 10" data-label="Text">good</div>`
		chunks := ParseChunks(raw, 1024, 1024, 1024)
		if len(chunks) != 1 || chunks[0].Content != "good" {
			t.Errorf("got %+v, want only the finite block", chunks)
		}
	})

	t.Run("short bbox is dropped", func(t *testing.T) {
		raw := `<div data-bbox="1 2 3" data-label="Text">bad</div>` +
			`<div data-bbox="[1, 2, 3, 4]" data-label="Text">good</div>`
		chunks := ParseChunks(raw, 1024, 1024, 1024)
		if len(chunks) != 1 || chunks[0].Content != "good" {
			t.Errorf("got %+v, want only the block with a full bbox", chunks)
		}
	})
}

func TestParseChunks_Empty(t *testing.T) {
	if got := ParseChunks("", 100, 100, 1024); len(got) != 0 {
		t.Errorf("ParseChunks(\"\") = %v, want empty", got)
	}
	if got := ParseChunks("  \n ", 100, 100, 1024); got == nil {
		t.Error("ParseChunks should return a non-nil slice")
	}
}

func TestParseChunks_DefaultScale(t *testing.T) {
	raw := `<div data-bbox="512 512 1024 1024" data-label="Text">x</div>`
	got := ParseChunks(raw, 100, 100, 0)
	if want := [4]int{50, 50, 100, 100}; got[0].BBox != want {
		t.Errorf("BBox = %v, want %v", got[0].BBox, want)
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want Label
	}{
		{"Text", LabelText},
		{"page-footer", LabelPageFooter},
		{"Page_Header", LabelPageHeader},
		{"section header", LabelSectionHeader},
		{"TABLE", LabelTable},
		{"", LabelText},
		{"Sticker", LabelText},
	}
	for _, tt := range tests {
		if got := NormalizeLabel(tt.in); got != tt.want {
			t.Errorf("NormalizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLabelClasses(t *testing.T) {
	for _, l := range Labels {
		if l.IsHeaderFooter() && l.IsExtractable() {
			t.Errorf("%s is both header/footer and extractable", l)
		}
	}
	if !LabelTable.IsExtractable() || LabelTable.IsVisual() {
		t.Error("tables are cropped but rendered as text")
	}
	if !LabelFigure.IsVisual() || !LabelImage.IsExtractable() {
		t.Error("figures and images are visual and extractable")
	}
}

func TestImageName(t *testing.T) {
	a := ImageName("raw", 3)
	if a != ImageName("raw", 3) {
		t.Error("ImageName is not deterministic")
	}
	if a == ImageName("raw", 4) || a == ImageName("other", 3) {
		t.Error("ImageName should depend on raw text and index")
	}
	if !strings.HasSuffix(a, "_3_img.png") {
		t.Errorf("ImageName() = %q, want _3_img.png suffix", a)
	}
}
