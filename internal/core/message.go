// Package core defines the data model shared by every other component:
// Message, Element, and the Flags bitset. A Message is immutable once
// built — constructed via MessageBuilder's fluent setters, mirroring the
// teacher's request-builder convention (construct with chained With*
// calls, finish with Build()), then handed to Channel.Append and never
// mutated again. Readers hold *Message concurrently without locking.
package core

import "time"

// Message is immutable after publication. Lifecycle: constructed by a
// MessageBuilder, appended to a History, and released once no History or
// Layout entry references it anymore (ordinary GC, no explicit refcount
// needed in Go).
type Message struct {
	// ID is the provider-assigned stable identifier. May be empty for
	// synthetic messages (e.g. locally generated system notices).
	ID string

	// ServerReceivedAt is when the event service says the message arrived.
	ServerReceivedAt time.Time
	// ParsedAt is when this process finished parsing the message.
	ParsedAt time.Time

	LoginName     string
	DisplayName   string
	LocalizedName string

	Flags Flags

	// ContentFingerprint is used for similarity/spam filtering (dedup
	// window checks). Not part of wire identity.
	ContentFingerprint string

	// Elements is the ordered, immutable content sequence. Never mutated
	// or resliced after Build; a replacement always produces a new
	// Message rather than editing Elements in place.
	Elements []Element
}

// WithFlags returns a copy of m with flags merged in. Used by the
// replace-based mutation helpers (History.DisableAll,
// Channel.DisableMessagesByUser) since Message itself is immutable.
func (m *Message) WithFlags(flags Flags) *Message {
	clone := *m
	clone.Flags = m.Flags.With(flags)
	return &clone
}

// HasID reports whether the message carries a non-empty provider ID.
func (m *Message) HasID() bool {
	return m != nil && m.ID != ""
}

// MessageBuilder assembles a Message via chained setters, finished by
// Build(). Not safe for concurrent use by multiple goroutines on the same
// builder instance — a builder is meant to be built up and discarded by a
// single parser goroutine.
type MessageBuilder struct {
	msg Message
}

// NewMessageBuilder starts a new builder with ParsedAt set to now.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{msg: Message{ParsedAt: time.Now()}}
}

// WithID sets the provider-assigned identifier.
func (b *MessageBuilder) WithID(id string) *MessageBuilder {
	b.msg.ID = id
	return b
}

// WithServerReceivedAt sets the server-reported receive time.
func (b *MessageBuilder) WithServerReceivedAt(t time.Time) *MessageBuilder {
	b.msg.ServerReceivedAt = t
	return b
}

// WithNames sets the login, display, and localized names.
func (b *MessageBuilder) WithNames(login, display, localized string) *MessageBuilder {
	b.msg.LoginName = login
	b.msg.DisplayName = display
	b.msg.LocalizedName = localized
	return b
}

// WithFlags merges flags into the builder's accumulated flag set.
func (b *MessageBuilder) WithFlags(flags Flags) *MessageBuilder {
	b.msg.Flags = b.msg.Flags.With(flags)
	return b
}

// WithContentFingerprint sets the similarity-filtering fingerprint.
func (b *MessageBuilder) WithContentFingerprint(fp string) *MessageBuilder {
	b.msg.ContentFingerprint = fp
	return b
}

// AppendElement appends a single content element, preserving insertion
// order (which also governs paint order and hit-test precedence).
func (b *MessageBuilder) AppendElement(el Element) *MessageBuilder {
	b.msg.Elements = append(b.msg.Elements, el)
	return b
}

// AppendElements appends a batch of elements in order.
func (b *MessageBuilder) AppendElements(els ...Element) *MessageBuilder {
	b.msg.Elements = append(b.msg.Elements, els...)
	return b
}

// Build finalizes the Message. A zero ParsedAt is backfilled to now, a
// zero ServerReceivedAt falls back to ParsedAt (most naturally the case
// for locally synthesized system messages). The returned pointer must not
// be mutated by the caller.
func (b *MessageBuilder) Build() *Message {
	if b.msg.ParsedAt.IsZero() {
		b.msg.ParsedAt = time.Now()
	}
	if b.msg.ServerReceivedAt.IsZero() {
		b.msg.ServerReceivedAt = b.msg.ParsedAt
	}
	out := b.msg
	out.Elements = append([]Element(nil), b.msg.Elements...)
	return &out
}
