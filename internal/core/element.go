package core

// ElementKind tags the variant held by an Element. Go has no sum types, so
// the original's virtual element hierarchy (MessageLayoutElement.hpp and
// siblings) is re-expressed as this tagged union rather than an interface
// hierarchy — there is no behavioral dispatch needed beyond painting,
// which lives in the layout package.
type ElementKind int

const (
	// ElementText is a run of plain or styled text.
	ElementText ElementKind = iota
	// ElementImage is an emote, badge-as-image, or other inline image.
	ElementImage
	// ElementTimestamp is the message's rendered send time.
	ElementTimestamp
	// ElementBadge is a channel/global badge icon.
	ElementBadge
	// ElementModerationButton is the inline timeout/ban/delete control.
	ElementModerationButton
)

// Element is a single polymorphic unit of message content. Elements are
// exclusively owned by their enclosing Message and are never mutated after
// construction.
type Element struct {
	Kind ElementKind

	// Text holds the literal text for ElementText, and the tooltip-less
	// fallback text (alt text) for image-like elements.
	Text string

	// ImageURL is the source URL for ElementImage/ElementBadge elements;
	// empty for other kinds.
	ImageURL string

	// Flags selects which rendering contexts this element participates in
	// (e.g. it may be hidden in a compact/collapsed render but present in
	// the full render). Reuses the Message Flags bitset type, though only
	// a handful of bits are meaningful at element granularity.
	Flags Flags

	// Link is an optional destination the element is clickable to.
	Link string

	// Tooltip is optional hover/long-press text.
	Tooltip string
}

// TextElement builds a plain-text element.
func TextElement(text string, flags Flags) Element {
	return Element{Kind: ElementText, Text: text, Flags: flags}
}

// ImageElement builds an inline image (emote) element.
func ImageElement(url, altText string, flags Flags) Element {
	return Element{Kind: ElementImage, ImageURL: url, Text: altText, Flags: flags}
}

// TimestampElement builds a rendered-timestamp element.
func TimestampElement(text string, flags Flags) Element {
	return Element{Kind: ElementTimestamp, Text: text, Flags: flags}
}

// BadgeElement builds a badge-icon element.
func BadgeElement(url, tooltip string, flags Flags) Element {
	return Element{Kind: ElementBadge, ImageURL: url, Tooltip: tooltip, Flags: flags}
}

// ModerationButtonElement builds the inline moderation-action control.
func ModerationButtonElement(flags Flags) Element {
	return Element{Kind: ElementModerationButton, Flags: flags}
}
