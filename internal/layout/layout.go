// Package layout is the per-message retained layout cache: given a
// Message and a render context (width, scale, flag mask, generation
// counters), it produces and caches a laid-out element sequence, a
// total height, and hit-test structures mapping screen coordinates back
// to characters. Grounded on spec.md §4.3 and, for the supplement, on
// original_source/src/messages/MessageLayoutElement.hpp (paint order:
// text, then images, then highlight background).
//
// Re-expresses the original's virtual LayoutElement hierarchy (core.Element
// is already a tagged union) as a plain struct with positions and sizes
// computed once per validity key, mirroring the teacher's
// internal/infra/telegram/cache.PeerCache shape: a mutex-guarded map
// keyed by something stable, read by many goroutines, written by one at
// a time — except here the key is a render context rather than a peer
// ID, and a miss recomputes rather than fetching over RPC.
package layout

import (
	"sync"

	"github.com/kurtskinny/twitch-chat-core/internal/core"
)

// Context is the render context a LayoutEntry is cached against.
// Mirrors spec.md §4.3's validity predicate fields exactly: width,
// scale, flag mask, and three generation counters.
type Context struct {
	Width    int
	Scale    float64
	FlagMask core.Flags

	ThemeGen uint64
	FontGen  uint64
	ImageGen uint64
}

// key is Context plus the message's own flags, since spec.md's validity
// predicate also includes "message flags" as a distinct equality term
// (a message's Collapsed/Centered bits can flip independently of the
// render context).
type key struct {
	Context
	messageFlags core.Flags
}

func keyFor(msg *core.Message, ctx Context) key {
	return key{Context: ctx, messageFlags: msg.Flags}
}

// ElementKind tags a laid-out element's paint role.
type ElementKind int

const (
	PaintText ElementKind = iota
	PaintImage
	PaintHighlightBackground
)

// LayoutElement is one positioned, sized unit of a laid-out message.
// CharStart/CharEnd index into the owning element's source Element.Text
// (for ElementText elements) and support hit-testing; image elements
// carry a zero-width character range.
type LayoutElement struct {
	Kind ElementKind

	SourceElement int // index into Message.Elements, or -1 for synthetic elements (e.g. overflow indicator)

	X, Y, W, H int

	CharStart, CharEnd int

	Text     string
	ImageURL string
}

// Selection is a (messageIndex, charIndex) pair. It participates only in
// paint: changing it invalidates a LayoutEntry's pixel buffer but never
// its element positions or height, per spec.md §4.3.
type Selection struct {
	MessageIndex int
	CharIndex    int
}

// LayoutEntry is the retained layout for one Message: element positions,
// total height, and an optional painted pixel buffer. Exclusively owned
// by the view (scrollable message area) that built it; a view never
// shares a LayoutEntry with another view.
type LayoutEntry struct {
	key   key
	valid bool

	Elements []LayoutElement
	Height   int

	// Expanded is a persistent per-entry flag: once a collapsed message
	// has been tapped open, it stays expanded across re-layouts (theme
	// changes, generation bumps) until the entry is evicted.
	Expanded bool

	// PixelsValid is false whenever only the paint buffer needs refresh
	// (selection or theme changed) while element positions are still
	// current. Building never clears Elements/Height in that case.
	PixelsValid bool
}

// Valid reports whether e was last built for exactly ctx and msg.Flags.
func (e *LayoutEntry) Valid(msg *core.Message, ctx Context) bool {
	return e.valid && e.key == keyFor(msg, ctx)
}

// HitResult identifies where a screen coordinate landed: which laid-out
// element it fell inside, the Message.Elements index that element was
// built from (-1 for synthetic elements such as the collapsed-mode
// overflow indicator), and the character offset within that source
// element's text the coordinate resolves to.
type HitResult struct {
	ElementIndex  int
	SourceElement int
	CharIndex     int
}

// HitTest resolves (x, y) — in the same coordinate space as
// LayoutElement.X/Y, i.e. relative to the entry's own top-left corner —
// to the element and character it falls within, per spec.md §4.3's
// hit-test contract. Elements are tested in Elements order, which is
// paint/insertion order: when a query point falls inside more than one
// element's rectangle, the first one built wins, never the visually
// topmost or smallest. Reports ok=false if the point misses every
// element (e.g. in the inter-line gutter or below the last line).
func (e *LayoutEntry) HitTest(x, y int) (result HitResult, ok bool) {
	for i, el := range e.Elements {
		if x < el.X || x >= el.X+el.W || y < el.Y || y >= el.Y+el.H {
			continue
		}
		return HitResult{
			ElementIndex:  i,
			SourceElement: el.SourceElement,
			CharIndex:     charIndexWithin(el, x),
		}, true
	}
	return HitResult{}, false
}

// charIndexWithin maps an x offset inside el's rectangle to a character
// index, assuming characters are laid out at uniform width across the
// element (true for this package's font-metric stand-in). Image and
// other zero-width-range elements just report CharStart.
func charIndexWithin(el LayoutElement, x int) int {
	chars := el.CharEnd - el.CharStart
	if el.Kind != PaintText || chars <= 0 || el.W <= 0 {
		return el.CharStart
	}
	offset := (x - el.X) * chars / el.W
	if offset < 0 {
		offset = 0
	}
	if offset > chars {
		offset = chars
	}
	return el.CharStart + offset
}

// Cache retains one LayoutEntry per message, keyed by message identity.
// A view owns exactly one Cache; entries are evicted by the view when a
// message scrolls permanently out of its retention window.
type Cache struct {
	mu      sync.Mutex
	entries map[*core.Message]*LayoutEntry
}

// New returns an empty layout Cache.
func New() *Cache {
	return &Cache{entries: make(map[*core.Message]*LayoutEntry)}
}

// Get returns the retained LayoutEntry for msg rendered at ctx,
// rebuilding it if absent or stale per the validity predicate. A
// freshly built entry preserves its Expanded flag across re-layouts so
// a user's "show more" tap survives a theme or image-generation bump.
func (c *Cache) Get(msg *core.Message, ctx Context) *LayoutEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[msg]
	if ok && entry.Valid(msg, ctx) {
		return entry
	}

	expanded := false
	if ok {
		expanded = entry.Expanded
	}

	entry = build(msg, ctx, expanded)
	c.entries[msg] = entry
	return entry
}

// InvalidatePixels marks every currently retained entry's pixel buffer
// stale without touching element positions or height, for selection or
// theme changes that don't affect layout geometry.
func (c *Cache) InvalidatePixels() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.PixelsValid = false
	}
}

// Evict drops the retained entry for msg, e.g. when msg scrolls
// permanently out of the view's retention window.
func (c *Cache) Evict(msg *core.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, msg)
}

// Expand flips a collapsed message's LayoutEntry into expanded mode and
// forces a re-layout on the next Get, per spec.md §4.3's "tapping the
// indicator flips the layout into expanded mode" behavior.
func (c *Cache) Expand(msg *core.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[msg]; ok {
		e.Expanded = true
		e.valid = false
	}
}

func build(msg *core.Message, ctx Context, expanded bool) *LayoutEntry {
	elements, height := wrap(msg, ctx)

	if msg.Flags.Has(core.Collapsed) && !expanded {
		elements, height = applyCollapse(elements, height, ctx)
	} else if msg.Flags.Has(core.Centered) {
		elements = recenter(elements, ctx.Width)
	}

	return &LayoutEntry{
		key:         keyFor(msg, ctx),
		valid:       true,
		Elements:    elements,
		Height:      height,
		Expanded:    expanded,
		PixelsValid: false,
	}
}
