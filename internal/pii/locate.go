package pii

import (
	"image"
	"unicode/utf8"

	"redactor/internal/ocr"
)

// spanRect narrows a block's box horizontally to the byte span [start, end)
// of its text, in proportion to rune offsets. The full block box is returned
// when the span covers the whole text.
func spanRect(block ocr.TextBlock, text string, start, end int) image.Rectangle {
	box := block.Rect()
	total := utf8.RuneCountInString(text)
	if total == 0 || start <= 0 && end >= len(text) {
		return box
	}

	start = max(start, 0)
	end = min(end, len(text))
	rs := utf8.RuneCountInString(text[:start])
	re := utf8.RuneCountInString(text[:end])

	w := box.Dx()
	x0 := box.Min.X + w*rs/total
	x1 := box.Min.X + (w*re+total-1)/total
	if x1 <= x0 {
		x1 = x0 + 1
	}
	return image.Rect(x0, box.Min.Y, x1, box.Max.Y)
}
