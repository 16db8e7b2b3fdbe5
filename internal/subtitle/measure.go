package subtitle

import "unicode"

// TextMeasurer estimates the rendered width of annotation text in units of
// one average glyph. The effect-region geometry depends on it, but no
// measurement is authoritative without font metrics, so it stays pluggable.
type TextMeasurer func(text string) float64

// MeasureByRuneCount is the default heuristic: every rune counts as one
// glyph.
func MeasureByRuneCount(text string) float64 {
	n := 0
	for range text {
		n++
	}
	return float64(n)
}

// MeasureWeighted weights runes by character class: CJK and other wide
// scripts count double, thin punctuation counts half.
func MeasureWeighted(text string) float64 {
	var w float64
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hangul, r) ||
			unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			w += 2
		case r == '.' || r == ',' || r == '\'' || r == '!' || r == 'i' || r == 'l' || r == '|':
			w += 0.5
		default:
			w++
		}
	}
	return w
}

// EffectRegion derives the region of interest for an effect preview from the
// annotation text and frame geometry, using the given measurer. The region
// hugs the subtitle band at the bottom of the frame.
func EffectRegion(text string, frameW, frameH int, measure TextMeasurer) (x, y, w, h int) {
	if measure == nil {
		measure = MeasureByRuneCount
	}
	glyphs := measure(text)
	if glyphs < 1 {
		glyphs = 1
	}

	h = frameH / 10
	w = int(glyphs * float64(h) * 0.6)
	if w > frameW {
		w = frameW
	}
	x = (frameW - w) / 2
	y = frameH - h - frameH/20
	return x, y, w, h
}
