package layout

import (
	"testing"

	"github.com/kurtskinny/twitch-chat-core/internal/core"
)

func textMessage(text string) *core.Message {
	return core.NewMessageBuilder().
		WithNames("tester", "Tester", "Tester").
		AppendElement(core.TextElement(text, 0)).
		Build()
}

func TestGetReusesEntryWhenContextUnchanged(t *testing.T) {
	c := New()
	msg := textMessage("hello world")
	ctx := Context{Width: 400, Scale: 1}

	first := c.Get(msg, ctx)
	second := c.Get(msg, ctx)

	if first != second {
		t.Fatalf("expected the same retained *LayoutEntry across unchanged context")
	}
}

func TestGetRebuildsOnWidthChange(t *testing.T) {
	c := New()
	msg := textMessage("hello world")

	first := c.Get(msg, Context{Width: 400, Scale: 1})
	second := c.Get(msg, Context{Width: 200, Scale: 1})

	if first == second {
		t.Fatalf("expected a new entry after width changed")
	}
}

func TestGetRebuildsOnImageGenerationChange(t *testing.T) {
	c := New()
	msg := textMessage("hello world")

	first := c.Get(msg, Context{Width: 400, Scale: 1, ImageGen: 1})
	second := c.Get(msg, Context{Width: 400, Scale: 1, ImageGen: 2})

	if first == second {
		t.Fatalf("expected a new entry after image generation bumped")
	}
}

func TestValidRejectsMismatchedMessageFlags(t *testing.T) {
	c := New()
	msg := textMessage("hi")
	ctx := Context{Width: 400, Scale: 1}

	entry := c.Get(msg, ctx)
	msg.Flags = core.Highlighted // direct mutation, simulating an externally re-flagged message

	if entry.Valid(msg, ctx) {
		t.Fatalf("expected validity to fail once message flags changed")
	}
}

func TestWrapBreaksAtWordBoundary(t *testing.T) {
	msg := textMessage("aa bb cc")
	// charW at scale 1 is approxCharWidth (8); width for "aa" is 16.
	// Pick a width that fits "aa bb" but not "aa bb cc" on one line.
	elements, _ := wrap(msg, Context{Width: marginLeft + marginRight + 16*2 + 1, Scale: 1})

	if len(elements) < 3 {
		t.Fatalf("expected at least 3 text elements, got %d", len(elements))
	}
	firstY := elements[0].Y
	var sawNewLine bool
	for _, e := range elements {
		if e.Y != firstY {
			sawNewLine = true
		}
	}
	if !sawNewLine {
		t.Fatalf("expected wrapping onto a second line, got all elements on one line: %+v", elements)
	}
}

func TestWrapBreaksOverWideWordCharacterByCharacter(t *testing.T) {
	msg := textMessage("supercalifragilisticexpialidocious")
	elements, _ := wrap(msg, Context{Width: marginLeft + marginRight + 8*4, Scale: 1})

	if len(elements) < 2 {
		t.Fatalf("expected the single over-wide word to be split across multiple elements, got %d", len(elements))
	}

	var rebuilt []rune
	for _, e := range elements {
		rebuilt = append(rebuilt, []rune(e.Text)...)
	}
	if string(rebuilt) != "supercalifragilisticexpialidocious" {
		t.Fatalf("broken word fragments must reconstitute the original text, got %q", string(rebuilt))
	}
}

func TestWrapCompactEmoteLineIsShorterThanTextLine(t *testing.T) {
	textOnly := core.NewMessageBuilder().AppendElement(core.TextElement("hi", 0)).Build()
	imageOnly := core.NewMessageBuilder().AppendElement(core.ImageElement("http://x/1.png", "Kappa", 0)).Build()

	ctx := Context{Width: 400, Scale: 1}
	_, textHeight := wrap(textOnly, ctx)
	_, imageHeight := wrap(imageOnly, ctx)

	if imageHeight >= textHeight {
		t.Fatalf("expected compact-emote line height (%d) to be shorter than a text line (%d)", imageHeight, textHeight)
	}
}

func TestCollapsedMessageGetsOverflowIndicator(t *testing.T) {
	c := New()
	lines := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen"
	msg := core.NewMessageBuilder().
		WithFlags(core.Collapsed).
		AppendElement(core.TextElement(lines, 0)).
		Build()

	entry := c.Get(msg, Context{Width: 60, Scale: 1})

	last := entry.Elements[len(entry.Elements)-1]
	if last.SourceElement != -1 {
		t.Fatalf("expected a synthetic overflow-indicator element, got %+v", last)
	}
	if entry.Height > scaleInt(collapsedHeightBase, 1)+scaleInt(overflowIndicatorHeight, 1) {
		t.Fatalf("collapsed height %d exceeds the fixed collapsed budget", entry.Height)
	}
}

func TestExpandRemovesCollapseOnNextGet(t *testing.T) {
	c := New()
	lines := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen"
	msg := core.NewMessageBuilder().
		WithFlags(core.Collapsed).
		AppendElement(core.TextElement(lines, 0)).
		Build()
	ctx := Context{Width: 60, Scale: 1}

	collapsedEntry := c.Get(msg, ctx)
	c.Expand(msg)
	expandedEntry := c.Get(msg, ctx)

	if expandedEntry.Height <= collapsedEntry.Height {
		t.Fatalf("expected expanded height (%d) to exceed collapsed height (%d)", expandedEntry.Height, collapsedEntry.Height)
	}
}

func TestCenteredMessageIsShiftedRight(t *testing.T) {
	msg := core.NewMessageBuilder().
		WithFlags(core.Centered).
		AppendElement(core.TextElement("hi", 0)).
		Build()

	c := New()
	entry := c.Get(msg, Context{Width: 400, Scale: 1})

	if len(entry.Elements) == 0 {
		t.Fatalf("expected at least one laid-out element")
	}
	if entry.Elements[0].X <= marginLeft {
		t.Fatalf("expected a centered short message to be shifted right of the left margin, got X=%d", entry.Elements[0].X)
	}
}

func TestHitTestResolvesCoordinateToElementAndChar(t *testing.T) {
	c := New()
	msg := textMessage("aa bb")
	entry := c.Get(msg, Context{Width: 400, Scale: 1})

	if len(entry.Elements) < 2 {
		t.Fatalf("expected two text-word elements, got %+v", entry.Elements)
	}
	second := entry.Elements[1]

	result, ok := entry.HitTest(second.X, second.Y)
	if !ok {
		t.Fatalf("expected the query point to land inside the second element's rectangle")
	}
	if result.ElementIndex != 1 || result.SourceElement != second.SourceElement {
		t.Fatalf("expected a hit on element 1, got %+v", result)
	}
	if result.CharIndex != second.CharStart {
		t.Fatalf("expected a hit at the element's left edge to resolve to its first character, got %d", result.CharIndex)
	}
}

func TestHitTestPrefersFirstElementOnOverlap(t *testing.T) {
	entry := &LayoutEntry{Elements: []LayoutElement{
		{Kind: PaintText, SourceElement: 0, X: 0, Y: 0, W: 20, H: 10, CharStart: 0, CharEnd: 1},
		{Kind: PaintHighlightBackground, SourceElement: 0, X: 0, Y: 0, W: 20, H: 10},
	}}

	result, ok := entry.HitTest(5, 5)
	if !ok {
		t.Fatalf("expected a hit inside the overlapping rectangles")
	}
	if result.ElementIndex != 0 {
		t.Fatalf("expected the tie-break to prefer the first element whose rectangle contains the point, got index %d", result.ElementIndex)
	}
}

func TestHitTestMissesOutsideEveryElement(t *testing.T) {
	c := New()
	msg := textMessage("hi")
	entry := c.Get(msg, Context{Width: 400, Scale: 1})

	if _, ok := entry.HitTest(-1, -1); ok {
		t.Fatalf("expected a query point outside every element's rectangle to miss")
	}
}

func TestEvictDropsRetainedEntry(t *testing.T) {
	c := New()
	msg := textMessage("hi")
	ctx := Context{Width: 400, Scale: 1}

	c.Get(msg, ctx)
	c.Evict(msg)

	if _, ok := c.entries[msg]; ok {
		t.Fatalf("expected entry to be evicted")
	}
}

func TestInvalidatePixelsLeavesElementsIntact(t *testing.T) {
	c := New()
	msg := textMessage("hi")
	ctx := Context{Width: 400, Scale: 1}

	entry := c.Get(msg, ctx)
	entry.PixelsValid = true
	c.InvalidatePixels()

	if entry.PixelsValid {
		t.Fatalf("expected PixelsValid to be cleared")
	}
	if len(entry.Elements) == 0 {
		t.Fatalf("expected element positions to survive a pixel-only invalidation")
	}
}
