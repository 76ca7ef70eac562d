package providers

import (
	"fmt"
	"strings"

	"github.com/LastGentlman/chandra/internal/layout"
)

const ocrPrompt = `OCR this image to HTML.

Use semantic tags: headings, paragraphs, lists, tables with colspan/rowspan,
<math> for equations (display="block" for display math), <pre> for code.
Describe images and figures in an alt attribute. Keep reading order.`

const layoutInstructions = `
Wrap every layout block in a top-level div:
<div data-bbox="x0 y0 x1 y1" data-label="Label">...</div>
Coordinates are integers from 0 to %d relative to the image width and height.
Allowed labels: %s.`

// Prompt returns the instruction text for a prompt type.
func Prompt(promptType string, bboxScale int) (string, error) {
	if bboxScale <= 0 {
		bboxScale = layout.DefaultBBoxScale
	}
	switch promptType {
	case PromptOCR:
		return ocrPrompt, nil
	case PromptOCRLayout, "":
		labels := make([]string, len(layout.Labels))
		for i, l := range layout.Labels {
			labels[i] = string(l)
		}
		return ocrPrompt + fmt.Sprintf(layoutInstructions, bboxScale, strings.Join(labels, ", ")), nil
	default:
		return "", fmt.Errorf("unknown prompt type: %s", promptType)
	}
}
