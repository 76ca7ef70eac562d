package layout

import "strings"

// Label is the layout type the model assigns to a block.
type Label string

// Labels emitted by the ocr_layout prompt. Anything else normalizes to LabelText.
const (
	LabelCaption         Label = "Caption"
	LabelFootnote        Label = "Footnote"
	LabelEquation        Label = "Equation-Block"
	LabelListGroup       Label = "List-Group"
	LabelPageHeader      Label = "Page-Header"
	LabelPageFooter      Label = "Page-Footer"
	LabelImage           Label = "Image"
	LabelFigure          Label = "Figure"
	LabelSectionHeader   Label = "Section-Header"
	LabelTable           Label = "Table"
	LabelText            Label = "Text"
	LabelComplexBlock    Label = "Complex-Block"
	LabelCode            Label = "Code-Block"
	LabelForm            Label = "Form"
	LabelTableOfContents Label = "Table-Of-Contents"
)

// Labels lists the closed label set in a stable order.
var Labels = []Label{
	LabelCaption,
	LabelFootnote,
	LabelEquation,
	LabelListGroup,
	LabelPageHeader,
	LabelPageFooter,
	LabelImage,
	LabelFigure,
	LabelSectionHeader,
	LabelTable,
	LabelText,
	LabelComplexBlock,
	LabelCode,
	LabelForm,
	LabelTableOfContents,
}

var labelIndex = func() map[string]Label {
	m := make(map[string]Label, len(Labels))
	for _, l := range Labels {
		m[labelKey(string(l))] = l
	}
	return m
}()

func labelKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "-", " ", "-").Replace(s)
}

// NormalizeLabel maps a raw data-label value onto the closed label set.
// Matching ignores case and treats underscores and spaces as hyphens.
func NormalizeLabel(raw string) Label {
	if l, ok := labelIndex[labelKey(raw)]; ok {
		return l
	}
	return LabelText
}

// IsHeaderFooter reports whether the label marks running page furniture.
func (l Label) IsHeaderFooter() bool {
	return l == LabelPageHeader || l == LabelPageFooter
}

// IsVisual reports whether the block is rendered as an image reference.
func (l Label) IsVisual() bool {
	return l == LabelImage || l == LabelFigure
}

// IsExtractable reports whether a crop of the block is produced.
func (l Label) IsExtractable() bool {
	return l.IsVisual() || l == LabelTable
}
