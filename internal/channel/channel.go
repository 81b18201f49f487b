// Package channel implements the writer/reader API sitting between the
// parse layer and History/ChatterIndex, per spec.md §6.1–§6.3: a single
// per-channel object that owns a bounded History and a ChatterIndex,
// exposes the mutating operations the IRC/parse layer calls, and fans
// out on_append/on_replace/on_prepend/on_clear signals to readers
// (render loop, completion, search). Grounded on the teacher's
// connection.Manager listener-slice pattern (OnDispatch/OnStateChange in
// eventclient, itself modeled on the teacher) generalized to four
// distinct signal kinds instead of one.
package channel

import (
	"strings"
	"time"

	"github.com/kurtskinny/twitch-chat-core/internal/chatterindex"
	"github.com/kurtskinny/twitch-chat-core/internal/core"
	"github.com/kurtskinny/twitch-chat-core/internal/history"
)

// Channel couples one History with the ChatterIndex its appends keep in
// sync, plus the reader-facing signal fan-out spec.md §6.2 specifies.
type Channel struct {
	Name string

	history  *history.History
	chatters *chatterindex.ChatterIndex

	onAppend  []func(msg *core.Message, overridingFlags *core.Flags)
	onReplace []func(index int, old, new *core.Message)
	onPrepend []func(batch []*core.Message)
	onClear   []func()
}

// New returns a Channel backed by a History of the given capacity and a
// fresh ChatterIndex.
func New(name string, capacity int) *Channel {
	return &Channel{
		Name:     name,
		history:  history.New(capacity),
		chatters: chatterindex.New(),
	}
}

// History returns the channel's underlying bounded buffer, for callers
// that need direct read access (Layout, search).
func (c *Channel) History() *history.History { return c.history }

// Chatters returns the channel's ChatterIndex, for completion sources.
func (c *Channel) Chatters() *chatterindex.ChatterIndex { return c.chatters }

// OnAppend registers a listener invoked after every successful Append.
// overridingFlags carries whatever value that particular Append call was
// given — nil when the message's own Flags should be used as-is.
func (c *Channel) OnAppend(fn func(msg *core.Message, overridingFlags *core.Flags)) {
	c.onAppend = append(c.onAppend, fn)
}

// OnReplace registers a listener invoked after every in-place replace.
func (c *Channel) OnReplace(fn func(index int, old, new *core.Message)) {
	c.onReplace = append(c.onReplace, fn)
}

// OnPrepend registers a listener invoked after every admitted front-fill batch.
func (c *Channel) OnPrepend(fn func(batch []*core.Message)) { c.onPrepend = append(c.onPrepend, fn) }

// OnClear registers a listener invoked after Clear.
func (c *Channel) OnClear(fn func()) { c.onClear = append(c.onClear, fn) }

// Append adds msg to the tail of history and indexes its display name
// into the chatter set, per spec.md §6.1. overridingFlags is passed
// through to on_append listeners as-is, without touching msg.Flags or
// anything already committed to history — it lets a particular render
// consumer (e.g. one split showing compact mode) ask for different
// rendering flags than the message's own, without mutating the shared
// core.Message every other split reads. Pass nil when no override
// applies. Returns the evicted message, if the append caused one.
func (c *Channel) Append(msg *core.Message, overridingFlags *core.Flags) (evicted *core.Message, didEvict bool) {
	evicted, didEvict = c.history.Append(msg)
	c.indexChatter(msg)
	for _, fn := range c.onAppend {
		fn(msg, overridingFlags)
	}
	return evicted, didEvict
}

// PrependBatch admits as many of msgs onto the head as remaining
// capacity allows, per spec.md §6.1/§4.1. Returns the admitted subset.
func (c *Channel) PrependBatch(msgs []*core.Message) []*core.Message {
	admitted := c.history.PrependBatch(msgs)
	for _, msg := range admitted {
		c.indexChatter(msg)
	}
	if len(admitted) > 0 {
		for _, fn := range c.onPrepend {
			fn(admitted)
		}
	}
	return admitted
}

// ReplaceByID replaces the message with the given provider id, per
// spec.md §6.1, and fires on_replace on success.
func (c *Channel) ReplaceByID(id string, newMsg *core.Message) (int, bool) {
	old := c.history.FindByID(id)
	index, ok := c.history.ReplaceByID(id, newMsg)
	if ok {
		for _, fn := range c.onReplace {
			fn(index, old, newMsg)
		}
	}
	return index, ok
}

// DisableMessagesByUser marks every message authored by loginName as
// Disabled in place, per spec.md §6.1's disable_messages_by_user. Used
// when a user is banned/purged and their prior messages should stop
// rendering without losing their position in history.
func (c *Channel) DisableMessagesByUser(loginName string) {
	snap := c.history.Snapshot()
	for i := 0; i < snap.Len(); i++ {
		msg := snap.Get(i)
		if msg == nil || !strings.EqualFold(msg.LoginName, loginName) {
			continue
		}
		disabled := msg.WithFlags(core.Disabled)
		if c.history.ReplaceAt(i, disabled) {
			for _, fn := range c.onReplace {
				fn(i, msg, disabled)
			}
		}
	}
}

// ApplyTimeout replaces the most recent timeout message targeting
// targetUser with an updated one, or appends a new one if none exists
// yet — spec.md §6.1's "collapses consecutive timeouts" stack-style
// behavior, read from original_source's moderation-message coalescing.
func (c *Channel) ApplyTimeout(targetUser string, duration time.Duration, reason string) {
	snap := c.history.Snapshot()
	for i := snap.Len() - 1; i >= 0; i-- {
		msg := snap.Get(i)
		if msg == nil || !msg.Flags.Has(core.Timeout) || !strings.EqualFold(msg.LoginName, targetUser) {
			continue
		}
		updated := buildTimeoutMessage(targetUser, duration, reason)
		if c.history.ReplaceAt(i, updated) {
			for _, fn := range c.onReplace {
				fn(i, msg, updated)
			}
		}
		return
	}
	c.Append(buildTimeoutMessage(targetUser, duration, reason), nil)
}

// ApplyClearChat replaces the most recent "chat cleared" system message
// with a fresh timestamp, or appends one, per spec.md §6.1.
func (c *Channel) ApplyClearChat(now time.Time) {
	snap := c.history.Snapshot()
	for i := snap.Len() - 1; i >= 0; i-- {
		msg := snap.Get(i)
		if msg == nil || !msg.Flags.Has(core.ClearChat) {
			continue
		}
		updated := buildClearChatMessage(now)
		if c.history.ReplaceAt(i, updated) {
			for _, fn := range c.onReplace {
				fn(i, msg, updated)
			}
		}
		return
	}
	c.Append(buildClearChatMessage(now), nil)
}

// Clear empties the channel's history and fires on_clear. ChatterIndex
// is left untouched — chatters are scoped to the channel's lifetime, not
// to any particular backlog window.
func (c *Channel) Clear() {
	c.history.Clear()
	for _, fn := range c.onClear {
		fn()
	}
}

func (c *Channel) indexChatter(msg *core.Message) {
	if msg == nil || msg.DisplayName == "" {
		return
	}
	c.chatters.Insert(msg.DisplayName)
}

func buildTimeoutMessage(targetUser string, duration time.Duration, reason string) *core.Message {
	text := targetUser + " has been timed out for " + duration.String()
	if reason != "" {
		text += ": " + reason
	}
	return core.NewMessageBuilder().
		WithNames(targetUser, "", "").
		WithFlags(core.System | core.Timeout | core.DoNotLog).
		AppendElement(core.TextElement(text, core.System)).
		Build()
}

func buildClearChatMessage(now time.Time) *core.Message {
	return core.NewMessageBuilder().
		WithServerReceivedAt(now).
		WithFlags(core.System | core.ClearChat | core.DoNotLog).
		AppendElement(core.TextElement("Chat has been cleared by a moderator.", core.System)).
		Build()
}
