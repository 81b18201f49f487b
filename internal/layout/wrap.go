package layout

import (
	"strings"

	"github.com/kurtskinny/twitch-chat-core/internal/core"
)

// marginLeft and marginRight reserve space for the message's gutter
// (timestamp/badges) and scrollbar, matching the original's fixed
// per-message margins.
const (
	marginLeft  = 4
	marginRight = 4

	// lineHeightBase is the 1x line height in pixels; scaled by Context.Scale.
	lineHeightBase = 18

	// compactEmoteLineHeightDelta is subtracted from the line height when
	// a line consists solely of image elements, per spec.md §4.3.
	compactEmoteLineHeightDelta = 4

	// approxCharWidth is a deterministic stand-in for real font metrics
	// (this package has no font backend); scaled by Context.Scale.
	approxCharWidth = 8

	// approxImageWidth/approxImageHeight is the 1x size assumed for
	// image elements absent a real decoded frame; scaled by Context.Scale.
	approxImageWidth  = 28
	approxImageHeight = 28

	// collapsedHeightBase is the fixed collapsed-mode height (32·scale
	// per spec.md §4.3).
	collapsedHeightBase = 32

	// overflowIndicatorHeight is the height reserved for the "show more"
	// element appended in collapsed mode.
	overflowIndicatorHeight = 16
)

func scaledLineHeight(scale float64) int {
	return scaleInt(lineHeightBase, scale)
}

func scaleInt(v int, scale float64) int {
	if scale <= 0 {
		scale = 1
	}
	return int(float64(v)*scale + 0.5)
}

// word is one wrap-indivisible unit: either a run of non-space
// characters from a text element, or a whole non-text element (images,
// badges, timestamps, the moderation button never split).
type word struct {
	sourceElement int
	kind          ElementKind
	text          string // for text words; includes no surrounding space
	charStart     int    // rune offset into the owning Element.Text
	url           string // for image-kind words
}

// wrap lays out msg's elements left-to-right, wrapping at word
// boundaries when the next word would exceed the available width. Text
// elements that individually exceed the line width are broken
// character-by-character at the widest prefix that still fits, per
// spec.md §4.3.
func wrap(msg *core.Message, ctx Context) ([]LayoutElement, int) {
	available := ctx.Width - marginLeft - marginRight
	if available < 1 {
		available = 1
	}
	charW := scaleInt(approxCharWidth, ctx.Scale)
	if charW < 1 {
		charW = 1
	}
	imgW := scaleInt(approxImageWidth, ctx.Scale)
	imgH := scaleInt(approxImageHeight, ctx.Scale)
	lineH := scaledLineHeight(ctx.Scale)

	words := splitWords(msg.Elements)

	var out []LayoutElement
	x, y := marginLeft, 0
	lineStart := len(out)
	lineIsImageOnly := true
	lineHasContent := false

	flushLine := func() {
		if !lineHasContent {
			return
		}
		h := lineH
		if lineIsImageOnly {
			h -= compactEmoteLineHeightDelta
			if h < 1 {
				h = 1
			}
		}
		for i := lineStart; i < len(out); i++ {
			out[i].H = h
		}
		y += h
		lineStart = len(out)
		lineIsImageOnly = true
		lineHasContent = false
		x = marginLeft
	}

	for _, w := range words {
		switch w.kind {
		case PaintImage:
			if lineHasContent && x+imgW > marginLeft+available {
				flushLine()
			}
			out = append(out, LayoutElement{
				Kind:          PaintImage,
				SourceElement: w.sourceElement,
				X:             x, Y: y, W: imgW, H: imgH,
				ImageURL: w.url,
			})
			x += imgW
			lineHasContent = true

		default: // text word
			width := charW * len([]rune(w.text))
			if width > available {
				// Break character-by-character at the widest prefix
				// that still fits the remaining line, then continue
				// the rest on subsequent lines.
				emitBrokenWord(&out, &x, &y, &lineIsImageOnly, &lineHasContent,
					w, charW, available, marginLeft, flushLine)
				continue
			}
			if lineHasContent && x+width > marginLeft+available {
				flushLine()
			}
			out = append(out, LayoutElement{
				Kind:          PaintText,
				SourceElement: w.sourceElement,
				X:             x, Y: y, W: width, H: 0,
				CharStart: w.charStart,
				CharEnd:   w.charStart + len([]rune(w.text)),
				Text:      w.text,
			})
			x += width
			lineIsImageOnly = false
			lineHasContent = true
		}
	}
	flushLine()

	height := y
	if height == 0 && len(msg.Elements) > 0 {
		height = lineH
	}
	return out, height
}

// emitBrokenWord splits an over-wide text word across as many lines as
// needed, each line taking the widest prefix that still fits.
func emitBrokenWord(
	out *[]LayoutElement,
	x, y *int,
	lineIsImageOnly, lineHasContent *bool,
	w word, charW, available, marginLeft int,
	flushLine func(),
) {
	runes := []rune(w.text)
	offset := 0
	for offset < len(runes) {
		room := marginLeft + available - *x
		maxChars := room / charW
		if maxChars < 1 {
			flushLine()
			room = available
			maxChars = room / charW
			if maxChars < 1 {
				maxChars = 1
			}
		}
		take := maxChars
		if offset+take > len(runes) {
			take = len(runes) - offset
		}
		chunk := string(runes[offset : offset+take])
		width := charW * take

		*out = append(*out, LayoutElement{
			Kind:          PaintText,
			SourceElement: w.sourceElement,
			X:             *x, Y: *y, W: width, H: 0,
			CharStart: w.charStart + offset,
			CharEnd:   w.charStart + offset + take,
			Text:      chunk,
		})
		*x += width
		*lineIsImageOnly = false
		*lineHasContent = true
		offset += take

		if offset < len(runes) {
			flushLine()
		}
	}
}

// splitWords flattens a message's elements into wrap-indivisible words:
// text elements split on whitespace (space runs are dropped, as the
// renderer re-inserts a fixed inter-word gap); every other element kind
// becomes exactly one image-kind word.
func splitWords(elements []core.Element) []word {
	var words []word
	for i, el := range elements {
		switch el.Kind {
		case core.ElementText:
			offset := 0
			for _, field := range strings.Fields(el.Text) {
				idx := strings.Index(el.Text[offset:], field)
				start := offset
				if idx >= 0 {
					start = offset + idx
				}
				words = append(words, word{
					sourceElement: i,
					kind:          PaintText,
					text:          field,
					charStart:     len([]rune(el.Text[:start])),
				})
				offset = start + len(field)
			}
		default:
			words = append(words, word{
				sourceElement: i,
				kind:          PaintImage,
				url:           el.ImageURL,
			})
		}
	}
	return words
}

// applyCollapse truncates a laid-out message to collapsedHeightBase·scale
// and appends a synthetic overflow-indicator element, per spec.md §4.3.
func applyCollapse(elements []LayoutElement, _ int, ctx Context) ([]LayoutElement, int) {
	limit := scaleInt(collapsedHeightBase, ctx.Scale)
	kept := make([]LayoutElement, 0, len(elements))
	for _, e := range elements {
		if e.Y+e.H > limit {
			break
		}
		kept = append(kept, e)
	}
	indicatorH := scaleInt(overflowIndicatorHeight, ctx.Scale)
	kept = append(kept, LayoutElement{
		Kind:          PaintText,
		SourceElement: -1,
		X:             marginLeft, Y: limit, W: scaleInt(approxCharWidth, ctx.Scale) * 10, H: indicatorH,
		Text: "show more",
	})
	return kept, limit + indicatorH
}

// recenter shifts every element on the final line so the line is
// horizontally centered within width, per spec.md §4.3's centered-message
// re-centering for system notices and subscriber events.
func recenter(elements []LayoutElement, width int) []LayoutElement {
	if len(elements) == 0 {
		return elements
	}
	lastY := elements[len(elements)-1].Y
	start := 0
	for i, e := range elements {
		if e.Y == lastY {
			start = i
			break
		}
	}
	lineStart := elements[start].X
	lineEnd := elements[len(elements)-1].X + elements[len(elements)-1].W
	lineWidth := lineEnd - lineStart
	shift := (width-marginLeft-marginRight-lineWidth)/2 - (lineStart - marginLeft)
	if shift <= 0 {
		return elements
	}
	out := append([]LayoutElement(nil), elements...)
	for i := start; i < len(out); i++ {
		out[i].X += shift
	}
	return out
}
